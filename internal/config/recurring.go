package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RecurringConfig holds the tunables of the generation scheduler that may be
// changed at runtime.
type RecurringConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Workers     int           `mapstructure:"workers"`
	RunInterval time.Duration `mapstructure:"runInterval"`
	Cron        string        `mapstructure:"cron"`
	Timezone    string        `mapstructure:"timezone"`
	TaskTimeout time.Duration `mapstructure:"taskTimeout"`
	RunTimeout  time.Duration `mapstructure:"runTimeout"`
	LockTTL     time.Duration `mapstructure:"lockTTL"`
}

func DefaultRecurringConfig() RecurringConfig {
	return RecurringConfig{
		Enabled:     true,
		Workers:     8,
		RunInterval: time.Hour,
		Timezone:    "UTC",
		TaskTimeout: 30 * time.Second,
		RunTimeout:  30 * time.Minute,
		LockTTL:     45 * time.Minute,
	}
}

// Location resolves Timezone, falling back to UTC.
func (c RecurringConfig) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

type RecurringConfigHolder struct {
	current atomic.Value // holds RecurringConfig
}

// NewRecurringConfigHolder reads recurring.yml from the standard locations and
// keeps it in sync with the file on disk.
func NewRecurringConfigHolder(log *zap.Logger) (*RecurringConfigHolder, error) {
	v := viper.New()
	v.SetConfigName("recurring")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/recurring")
	v.AddConfigPath(".")
	return newRecurringConfigHolder(v, log)
}

// LoadRecurringConfigFile reads a single explicit config file.
func LoadRecurringConfigFile(path string, log *zap.Logger) (*RecurringConfigHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return newRecurringConfigHolder(v, log)
}

func newRecurringConfigHolder(v *viper.Viper, log *zap.Logger) (*RecurringConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.recurring")

	defaults := DefaultRecurringConfig()
	v.SetDefault("recurring.enabled", defaults.Enabled)
	v.SetDefault("recurring.workers", defaults.Workers)
	v.SetDefault("recurring.runInterval", defaults.RunInterval)
	v.SetDefault("recurring.cron", defaults.Cron)
	v.SetDefault("recurring.timezone", defaults.Timezone)
	v.SetDefault("recurring.taskTimeout", defaults.TaskTimeout)
	v.SetDefault("recurring.runTimeout", defaults.RunTimeout)
	v.SetDefault("recurring.lockTTL", defaults.LockTTL)

	// Keys already live under "recurring.", so RECURRING_WORKERS maps to
	// recurring.workers without an env prefix.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	cfg, err := decodeRecurringConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &RecurringConfigHolder{}
	holder.current.Store(cfg)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeRecurringConfig(v)
			if err != nil {
				log.Warn("config.reload.rejected", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("config.reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticRecurringConfigHolder wraps a fixed config, for tests and one-shot commands.
func NewStaticRecurringConfigHolder(cfg RecurringConfig) *RecurringConfigHolder {
	holder := &RecurringConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *RecurringConfigHolder) Get() RecurringConfig {
	if h == nil {
		return DefaultRecurringConfig()
	}
	return h.current.Load().(RecurringConfig)
}

func decodeRecurringConfig(v *viper.Viper) (RecurringConfig, error) {
	// Unmarshal walks every leaf key, so defaults fill keys missing from the file.
	var file struct {
		Recurring RecurringConfig `mapstructure:"recurring"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return RecurringConfig{}, err
	}
	cfg := file.Recurring
	if err := validateRecurringConfig(cfg); err != nil {
		return RecurringConfig{}, err
	}
	return cfg, nil
}

func validateRecurringConfig(cfg RecurringConfig) error {
	if cfg.Workers <= 0 {
		return errors.New("recurring.workers must be positive")
	}
	if cfg.Cron == "" && cfg.RunInterval <= 0 {
		return errors.New("recurring.runInterval must be positive when no cron is set")
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("recurring.timezone: %w", err)
		}
	}
	return nil
}

package scheduler

import (
	"time"

	"github.com/smallbiznis/recurring/internal/config"
)

// Config controls how a generation run is triggered and fanned out.
type Config struct {
	Enabled     bool
	Workers     int
	RunInterval time.Duration
	// CronSpec, when set, replaces the RunInterval ticker.
	CronSpec    string
	Location    *time.Location
	TaskTimeout time.Duration
	RunTimeout  time.Duration
	LockTTL     time.Duration
}

func DefaultConfig() Config {
	return ConfigFrom(config.DefaultRecurringConfig())
}

// ConfigFrom maps the hot-reloadable file config onto the engine config.
func ConfigFrom(rc config.RecurringConfig) Config {
	return Config{
		Enabled:     rc.Enabled,
		Workers:     rc.Workers,
		RunInterval: rc.RunInterval,
		CronSpec:    rc.Cron,
		Location:    rc.Location(),
		TaskTimeout: rc.TaskTimeout,
		RunTimeout:  rc.RunTimeout,
		LockTTL:     rc.LockTTL,
	}
}

func (c Config) withDefaults() Config {
	defaults := config.DefaultRecurringConfig()
	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = defaults.TaskTimeout
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

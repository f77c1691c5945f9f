package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/recurring/internal/clock"
	"github.com/smallbiznis/recurring/internal/config"
	obscontext "github.com/smallbiznis/recurring/internal/observability/context"
	obsmetrics "github.com/smallbiznis/recurring/internal/observability/metrics"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const (
	TriggerTicker = "ticker"
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

type Params struct {
	fx.In

	Profiles domain.ProfileRepository
	Task     domain.Generator
	Clock    clock.Clock
	Log      *zap.Logger
	Holder   *config.RecurringConfigHolder `optional:"true"`
	Locker   *RunLocker                    `optional:"true"`
	Metrics  *obsmetrics.SchedulerMetrics  `optional:"true"`
	Config   Config                        `optional:"true"`
}

// Scheduler enumerates due profiles and runs one generation task per
// profile. It keeps no state between runs.
type Scheduler struct {
	profiles domain.ProfileRepository
	task     domain.Generator
	clock    clock.Clock
	log      *zap.Logger
	holder   *config.RecurringConfigHolder
	locker   *RunLocker
	metrics  *obsmetrics.SchedulerMetrics
	cfg      Config
}

func New(p Params) (*Scheduler, error) {
	if p.Profiles == nil || p.Task == nil || p.Clock == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		profiles: p.Profiles,
		task:     p.Task,
		clock:    p.Clock,
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		holder:   p.Holder,
		locker:   p.Locker,
		metrics:  p.Metrics,
		cfg:      p.Config,
	}, nil
}

// config prefers the hot-reloadable holder so every run sees the latest file.
func (s *Scheduler) config() Config {
	if s.holder != nil {
		return ConfigFrom(s.holder.Get()).withDefaults()
	}
	return s.cfg.withDefaults()
}

// RunOnce generates every profile due on or before asOf. The outcomes slice
// holds exactly one entry per due profile, in enumeration order. The error
// is non-nil only when enumeration or the run lock failed.
func (s *Scheduler) RunOnce(ctx context.Context, asOf time.Time) ([]domain.Outcome, error) {
	return s.run(ctx, clock.Date(asOf, time.UTC), TriggerManual)
}

func (s *Scheduler) run(parent context.Context, asOf time.Time, trigger string) ([]domain.Outcome, error) {
	cfg := s.config()
	run := newRunStats(ulid.Make().String(), trigger, asOf, s.clock.Now())

	ctx := obscontext.WithRunID(parent, run.runID)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	s.metrics.IncRun(trigger)
	defer func() { s.metrics.ObserveRunDuration(s.clock.Now().Sub(run.startedAt)) }()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, asOf, cfg.LockTTL)
		if err != nil {
			s.logRunError(ctx, run, "recurring.run.lock_failed", err)
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			s.metrics.IncRunSkipped(obsmetrics.RunSkippedLockHeld)
			s.logger(ctx).Info("recurring.run.skipped",
				zap.String("reason", obsmetrics.RunSkippedLockHeld),
				zap.String("as_of", asOf.Format(time.DateOnly)),
			)
			return []domain.Outcome{}, nil
		}
		defer s.releaseLock(asOf, token)
	}

	ids, err := s.profiles.FindDueProfiles(ctx, asOf)
	if err != nil {
		s.logRunError(ctx, run, "recurring.run.enumerate_failed", err)
		return nil, err
	}
	ids = dedupe(ids)
	s.metrics.SetProfilesDue(len(ids))
	run.due = len(ids)
	s.logRunStart(ctx, run, cfg)

	outcomes := make([]domain.Outcome, len(ids))
	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = s.runTask(ctx, id, asOf, cfg.TaskTimeout)
			return nil
		})
	}
	_ = g.Wait()

	run.record(outcomes)
	s.logRunFinish(ctx, run, s.clock.Now())
	return outcomes, nil
}

func (s *Scheduler) runTask(ctx context.Context, id uuid.UUID, asOf time.Time, timeout time.Duration) (out domain.Outcome) {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			out = domain.Outcome{
				ProfileID: id,
				Kind:      domain.OutcomeFailed,
				Err:       fmt.Errorf("generation panicked: %v", r),
			}
			s.logger(ctx).Error("recurring.task.panic",
				zap.String("profile_id", id.String()),
				zap.Any("panic", r),
			)
		}
		s.metrics.ObserveTaskDuration(s.clock.Now().Sub(start))
		s.metrics.RecordOutcome(out)
	}()

	return s.task.Run(ctx, id, asOf)
}

func (s *Scheduler) releaseLock(asOf time.Time, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.locker.Release(ctx, asOf, token); err != nil {
		s.log.Warn("recurring.run.lock_release_failed", zap.Error(err))
	}
}

// RunForever triggers runs until ctx is cancelled, on the cron schedule
// when one is configured and on the RunInterval ticker otherwise.
func (s *Scheduler) RunForever(ctx context.Context) {
	cfg := s.config()
	if cfg.CronSpec != "" {
		if err := s.runCron(ctx, cfg); err != nil {
			s.log.Error("recurring.scheduler.cron_invalid", zap.String("cron", cfg.CronSpec), zap.Error(err))
		}
		return
	}
	s.runTicker(ctx, cfg.RunInterval)
}

func (s *Scheduler) runTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.tick(ctx, TriggerTicker)

		if next := s.config().RunInterval; next != interval {
			interval = next
			ticker.Reset(interval)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runCron(ctx context.Context, cfg Config) error {
	logger := cronLogger{s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(cfg.CronSpec, func() { s.tick(ctx, TriggerCron) }); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) tick(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	cfg := s.config()
	if !cfg.Enabled {
		s.metrics.IncRunSkipped(obsmetrics.RunSkippedDisabled)
		return
	}
	asOf := clock.Date(s.clock.Now(), cfg.Location)
	if _, err := s.run(ctx, asOf, trigger); err != nil {
		s.log.Warn("recurring.run.failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// cronLogger routes robfig/cron logs to zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

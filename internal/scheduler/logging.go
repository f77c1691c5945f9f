package scheduler

import (
	"context"
	"time"

	obslogger "github.com/smallbiznis/recurring/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recurring/internal/observability/metrics"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"go.uber.org/zap"
)

type runStats struct {
	runID     string
	trigger   string
	asOf      time.Time
	startedAt time.Time
	due       int
	counts    map[domain.OutcomeKind]int
	degraded  int
}

func newRunStats(runID, trigger string, asOf, startedAt time.Time) *runStats {
	return &runStats{
		runID:     runID,
		trigger:   trigger,
		asOf:      asOf,
		startedAt: startedAt,
		counts:    make(map[domain.OutcomeKind]int),
	}
}

func (r *runStats) record(outcomes []domain.Outcome) {
	for _, out := range outcomes {
		r.counts[out.Kind]++
		if out.Degraded {
			r.degraded++
		}
	}
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logRunStart(ctx context.Context, run *runStats, cfg Config) {
	s.logger(ctx).Info("recurring.run.start",
		zap.String("trigger", run.trigger),
		zap.String("as_of", run.asOf.Format(time.DateOnly)),
		zap.Int("due_count", run.due),
		zap.Int("workers", cfg.Workers),
	)
}

func (s *Scheduler) logRunFinish(ctx context.Context, run *runStats, now time.Time) {
	fields := []zap.Field{
		zap.String("trigger", run.trigger),
		zap.String("as_of", run.asOf.Format(time.DateOnly)),
		zap.Int64("duration_ms", now.Sub(run.startedAt).Milliseconds()),
		zap.Int("due_count", run.due),
		zap.Int("generated", run.counts[domain.OutcomeGenerated]),
		zap.Int("already_generated", run.counts[domain.OutcomeSkippedAlreadyGenerated]),
		zap.Int("not_due", run.counts[domain.OutcomeSkippedNotDue]),
		zap.Int("terminal", run.counts[domain.OutcomeSkippedTerminalStatus]),
		zap.Int("failed", run.counts[domain.OutcomeFailed]),
		zap.Int("degraded", run.degraded),
	}
	log := s.logger(ctx)
	if run.counts[domain.OutcomeFailed] > 0 {
		log.Warn("recurring.run.finish", fields...)
		return
	}
	log.Info("recurring.run.finish", fields...)
}

func (s *Scheduler) logRunError(ctx context.Context, run *runStats, msg string, err error) {
	if err == nil {
		return
	}
	s.logger(ctx).Error(msg,
		zap.String("trigger", run.trigger),
		zap.String("as_of", run.asOf.Format(time.DateOnly)),
		zap.String("error_type", obsmetrics.ClassifyGenerationError(err)),
		zap.Error(err),
	)
}

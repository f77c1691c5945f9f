package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"gorm.io/gorm"
)

const (
	ReasonConflict             = "conflict"
	ReasonAssembly             = "assembly"
	ReasonNotFound             = "profile_not_found"
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonUnavailable          = "unavailable"
	ReasonUnknown              = "unknown"
)

const (
	RunSkippedLockHeld = "lock_held"
	RunSkippedDisabled = "disabled"
)

// SchedulerMetrics captures generation scheduler health for Prometheus.
type SchedulerMetrics struct {
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	runsSkipped    *prometheus.CounterVec
	profilesDue    prometheus.Gauge
	outcomes       *prometheus.CounterVec
	taskDuration   prometheus.Histogram
	taskErrors     *prometheus.CounterVec
	notifyFailures prometheus.Counter
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

// NewSchedulerMetrics registers a fresh set of scheduler series on registerer.
func NewSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	return newSchedulerMetrics(registerer, cfg)
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "recurring"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &SchedulerMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recurring_scheduler_runs_total",
			Help:        "Generation runs by trigger.",
			ConstLabels: constLabels,
		}, []string{"trigger"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "recurring_scheduler_run_duration_seconds",
			Help:        "Wall time of one generation run.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
			ConstLabels: constLabels,
		}),
		runsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recurring_scheduler_runs_skipped_total",
			Help:        "Generation runs that did not enumerate profiles.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		profilesDue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "recurring_scheduler_profiles_due",
			Help:        "Profiles returned as due by the last run.",
			ConstLabels: constLabels,
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recurring_generation_outcomes_total",
			Help:        "Generation task outcomes by kind.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "recurring_generation_task_duration_seconds",
			Help:        "Latency of one generation task.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}),
		taskErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "recurring_generation_errors_total",
			Help:        "Failed generation tasks by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "recurring_generation_degraded_total",
			Help:        "Committed generations whose notifier calls failed.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.runs,
		m.runDuration,
		m.runsSkipped,
		m.profilesDue,
		m.outcomes,
		m.taskDuration,
		m.taskErrors,
		m.notifyFailures,
	)
	return m
}

func (m *SchedulerMetrics) IncRun(trigger string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(trigger).Inc()
}

func (m *SchedulerMetrics) ObserveRunDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

func (m *SchedulerMetrics) IncRunSkipped(reason string) {
	if m == nil {
		return
	}
	m.runsSkipped.WithLabelValues(reason).Inc()
}

func (m *SchedulerMetrics) SetProfilesDue(n int) {
	if m == nil {
		return
	}
	m.profilesDue.Set(float64(n))
}

func (m *SchedulerMetrics) ObserveTaskDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.Observe(d.Seconds())
}

// RecordOutcome counts the outcome and, for failures and degraded
// successes, the matching error series.
func (m *SchedulerMetrics) RecordOutcome(outcome domain.Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(outcome.Kind)).Inc()
	if outcome.Kind == domain.OutcomeFailed {
		m.taskErrors.WithLabelValues(ClassifyGenerationError(outcome.Err)).Inc()
	}
	if outcome.Degraded {
		m.notifyFailures.Inc()
	}
}

// ClassifyGenerationError maps a task error to a metrics reason label.
func ClassifyGenerationError(err error) string {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, domain.ErrConflict) {
		return ReasonConflict
	}
	if errors.Is(err, domain.ErrProfileNotFound) {
		return ReasonNotFound
	}
	if domain.IsAssemblyError(err) {
		return ReasonAssembly
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReasonDeadlineExceeded
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return ReasonDBLockTimeout
		case "40001":
			return ReasonSerializationFailure
		case "23505":
			return ReasonUniqueViolation
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ReasonUniqueViolation
	}
	if domain.IsUnavailable(err) {
		return ReasonUnavailable
	}
	return ReasonUnknown
}

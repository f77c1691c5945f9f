package generation

import (
	"context"
	"errors"

	obslogger "github.com/smallbiznis/recurring/internal/observability/logger"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"go.uber.org/zap"
)

// logOutcome picks the level by what the outcome means for operators:
// skips are debug, conflicts are expected and stay at info, bad profile
// data is an error, storage trouble is a warning because the next run
// retries it.
func (t *Task) logOutcome(ctx context.Context, out domain.Outcome) {
	log := obslogger.WithContext(ctx, t.log)
	fields := []zap.Field{zap.String("outcome", string(out.Kind))}
	if out.OccurrenceIndex > 0 {
		fields = append(fields, zap.Int("occurrence_index", out.OccurrenceIndex))
	}
	if out.InvoiceID != 0 {
		fields = append(fields, zap.String("invoice_id", out.InvoiceID.String()))
	}

	switch out.Kind {
	case domain.OutcomeGenerated:
		log.Info("recurring.task.generated", fields...)
	case domain.OutcomeSkippedAlreadyGenerated:
		log.Info("recurring.task.already_generated", fields...)
	case domain.OutcomeSkippedNotDue, domain.OutcomeSkippedTerminalStatus:
		log.Debug("recurring.task.skipped", fields...)
	case domain.OutcomeFailed:
		fields = append(fields, zap.Error(out.Err))
		switch {
		case errors.Is(out.Err, domain.ErrConflict):
			log.Info("recurring.task.conflict", fields...)
		case domain.IsAssemblyError(out.Err):
			log.Error("recurring.task.assembly_failed", fields...)
		default:
			log.Warn("recurring.task.failed", fields...)
		}
		return
	}

	if out.Degraded {
		log.Warn("recurring.task.notify_failed", append(fields, zap.Error(out.NotifyErr))...)
	}
}

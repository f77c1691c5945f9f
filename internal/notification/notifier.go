package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Enqueuer is the subset of *asynq.Client the notifier uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier hands side effects to the worker through asynq.
type QueueNotifier struct {
	client Enqueuer
	log    *zap.Logger
}

func NewQueueNotifier(client Enqueuer, log *zap.Logger) *QueueNotifier {
	return &QueueNotifier{client: client, log: log.Named("notification.queue")}
}

func (n *QueueNotifier) RequestSend(ctx context.Context, invoiceID snowflake.ID) error {
	task, err := NewSendInvoiceTask(invoiceID)
	if err != nil {
		return err
	}
	return n.enqueue(ctx, task, taskID(TaskTypeSendInvoice, invoiceID))
}

func (n *QueueNotifier) NotifyGenerated(ctx context.Context, profileID uuid.UUID, invoiceID snowflake.ID) error {
	task, err := NewInvoiceGeneratedTask(profileID, invoiceID)
	if err != nil {
		return err
	}
	return n.enqueue(ctx, task, taskID(TaskTypeInvoiceGenerated, invoiceID))
}

func (n *QueueNotifier) enqueue(ctx context.Context, task *asynq.Task, id string) error {
	_, err := n.client.EnqueueContext(ctx, task,
		asynq.TaskID(id),
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(defaultMaxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		n.log.Debug("notification.enqueue.duplicate", zap.String("task_id", id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// LogNotifier records side-effect requests in the log only. It stands in
// when no queue is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notification.log")}
}

func (n *LogNotifier) RequestSend(ctx context.Context, invoiceID snowflake.ID) error {
	n.log.Info("notification.send_requested", zap.String("invoice_id", invoiceID.String()))
	return nil
}

func (n *LogNotifier) NotifyGenerated(ctx context.Context, profileID uuid.UUID, invoiceID snowflake.ID) error {
	n.log.Info("notification.generated",
		zap.String("profile_id", profileID.String()),
		zap.String("invoice_id", invoiceID.String()),
	)
	return nil
}

// Package notification moves post-generation side effects onto an asynq
// queue: the scheduler enqueues, the worker process delivers.
package notification

import (
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	QueueNotifications = "notifications"

	TaskTypeSendInvoice      = "invoice:send"
	TaskTypeInvoiceGenerated = "recurring:generated"
	defaultMaxRetry          = 10
)

type SendInvoicePayload struct {
	InvoiceID snowflake.ID `json:"invoice_id"`
}

type InvoiceGeneratedPayload struct {
	ProfileID uuid.UUID    `json:"profile_id"`
	InvoiceID snowflake.ID `json:"invoice_id"`
}

func NewSendInvoiceTask(invoiceID snowflake.ID) (*asynq.Task, error) {
	data, err := json.Marshal(SendInvoicePayload{InvoiceID: invoiceID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendInvoice, data), nil
}

func NewInvoiceGeneratedTask(profileID uuid.UUID, invoiceID snowflake.ID) (*asynq.Task, error) {
	data, err := json.Marshal(InvoiceGeneratedPayload{ProfileID: profileID, InvoiceID: invoiceID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeInvoiceGenerated, data), nil
}

// taskID makes re-enqueueing the same side effect for the same invoice a no-op.
func taskID(taskType string, invoiceID snowflake.ID) string {
	return fmt.Sprintf("%s:%s", taskType, invoiceID)
}

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/smallbiznis/recurring/internal/clock"
	clientdomain "github.com/smallbiznis/recurring/internal/client/domain"
	invoicedomain "github.com/smallbiznis/recurring/internal/invoice/domain"
	"github.com/smallbiznis/recurring/internal/notification/domain"
	"github.com/smallbiznis/recurring/internal/providers/email"
	"github.com/smallbiznis/recurring/internal/recurring/assembler"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type HandlerParams struct {
	fx.In

	DB       *gorm.DB
	Invoices invoicedomain.Repository
	Clients  clientdomain.Repository
	Email    email.Provider
	GenID    *snowflake.Node
	Clock    clock.Clock
	Log      *zap.Logger
}

// Handlers consume the tasks enqueued by QueueNotifier.
type Handlers struct {
	db       *gorm.DB
	invoices invoicedomain.Repository
	clients  clientdomain.Repository
	email    email.Provider
	genID    *snowflake.Node
	clock    clock.Clock
	log      *zap.Logger
}

func NewHandlers(p HandlerParams) *Handlers {
	return &Handlers{
		db:       p.DB,
		invoices: p.Invoices,
		clients:  p.Clients,
		email:    p.Email,
		genID:    p.GenID,
		clock:    p.Clock,
		log:      p.Log.Named("notification.worker"),
	}
}

func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeSendInvoice, h.HandleSendInvoice)
	mux.HandleFunc(TaskTypeInvoiceGenerated, h.HandleInvoiceGenerated)
	return mux
}

// HandleSendInvoice emails a DRAFT invoice to its client and marks it SENT.
// Invoices that already left DRAFT are acknowledged without sending again.
func (h *Handlers) HandleSendInvoice(ctx context.Context, t *asynq.Task) error {
	var payload SendInvoicePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	inv, err := h.invoices.Get(ctx, payload.InvoiceID)
	if errors.Is(err, invoicedomain.ErrInvoiceNotFound) {
		return fmt.Errorf("invoice %s: %w", payload.InvoiceID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if inv.Status != invoicedomain.InvoiceStatusDraft {
		h.log.Info("invoice.send.skipped",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("status", string(inv.Status)),
		)
		return nil
	}

	client, err := h.clients.FindByID(ctx, inv.ClientID)
	if err != nil {
		return err
	}
	if client == nil || client.Email == "" {
		return fmt.Errorf("client %s has no email: %w", inv.ClientID, asynq.SkipRetry)
	}

	if err := h.email.SendTemplate(ctx, []string{client.Email}, "invoice_sent", invoiceTemplateData(inv, client.Name)); err != nil {
		return fmt.Errorf("send invoice email: %w", err)
	}

	if _, err := h.invoices.MarkSent(ctx, inv.ID, h.clock.Now()); err != nil {
		return fmt.Errorf("mark invoice sent: %w", err)
	}
	h.log.Info("invoice.sent",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("account_id", inv.AccountID.String()),
	)
	return nil
}

// HandleInvoiceGenerated records an in-app notification for the account.
func (h *Handlers) HandleInvoiceGenerated(ctx context.Context, t *asynq.Task) error {
	var payload InvoiceGeneratedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	inv, err := h.invoices.Get(ctx, payload.InvoiceID)
	if errors.Is(err, invoicedomain.ErrInvoiceNotFound) {
		return fmt.Errorf("invoice %s: %w", payload.InvoiceID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	n := domain.Notification{
		ID:        h.genID.Generate(),
		AccountID: inv.AccountID,
		ProfileID: payload.ProfileID,
		InvoiceID: inv.ID,
		Kind:      domain.KindInvoiceGenerated,
		Message:   fmt.Sprintf("Invoice %s for %s %s was generated", inv.Reference, formatAmount(inv), inv.Currency),
		CreatedAt: h.clock.Now(),
	}
	return h.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&n).Error
}

func invoiceTemplateData(inv *invoicedomain.Invoice, clientName string) map[string]any {
	return map[string]any{
		"client_name":    clientName,
		"reference":      inv.Reference,
		"invoice_number": inv.InvoiceNumber,
		"total":          formatAmount(inv),
		"currency":       inv.Currency,
		"due_date":       inv.DueDate.Format(time.DateOnly),
	}
}

func formatAmount(inv *invoicedomain.Invoice) string {
	scale, err := assembler.MinorUnits(inv.Currency)
	if err != nil {
		return inv.TotalAmount.String()
	}
	return inv.TotalAmount.StringFixed(scale)
}

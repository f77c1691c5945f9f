package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	// ErrDuplicateOccurrence is returned by Create when another writer already
	// stored an invoice under the same idempotency key.
	ErrDuplicateOccurrence = errors.New("invoice_occurrence_exists")
)

type Repository interface {
	FindByIdempotencyKey(ctx context.Context, key IdempotencyKey) (snowflake.ID, bool, error)
	Create(ctx context.Context, draft Draft, key IdempotencyKey) (snowflake.ID, error)
	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
	// MarkSent moves a DRAFT invoice to SENT. It reports false when the
	// invoice was not in DRAFT.
	MarkSent(ctx context.Context, id snowflake.ID, at time.Time) (bool, error)
}

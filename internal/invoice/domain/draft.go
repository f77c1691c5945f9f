package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IdempotencyKey identifies one occurrence of one profile.
type IdempotencyKey struct {
	ProfileID       uuid.UUID
	OccurrenceIndex int
}

func (k IdempotencyKey) String() string {
	return fmt.Sprintf("%s:%d", k.ProfileID, k.OccurrenceIndex)
}

// Draft is an assembled invoice that has not been persisted. It owns its
// items; nothing in it aliases the profile it was built from.
type Draft struct {
	AccountID       uuid.UUID
	ClientID        uuid.UUID
	ProfileID       uuid.UUID
	ProfileName     string
	Currency        string
	IssueDate       time.Time
	DueDate         time.Time
	Items           []DraftItem
	Subtotal        decimal.Decimal
	TaxAmount       decimal.Decimal
	DiscountAmount  decimal.Decimal
	Total           decimal.Decimal
	TaxRate         *decimal.Decimal
	DiscountPercent *decimal.Decimal
	Metadata        map[string]any
}

type DraftItem struct {
	Position    int
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	VatRate     decimal.Decimal
	LineTotal   decimal.Decimal
}

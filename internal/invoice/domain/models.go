// Package domain contains persistence models for generated invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "DRAFT"
	InvoiceStatusSent  InvoiceStatus = "SENT"
	InvoiceStatusPaid  InvoiceStatus = "PAID"
	InvoiceStatusVoid  InvoiceStatus = "VOID"
)

// Invoice is one occurrence generated from a recurring profile.
// (ProfileID, OccurrenceIndex) is unique and acts as the idempotency key.
type Invoice struct {
	ID              snowflake.ID      `gorm:"primaryKey"`
	AccountID       uuid.UUID         `gorm:"type:uuid;not null;index;uniqueIndex:ux_invoice_account_number,priority:1"`
	ClientID        uuid.UUID         `gorm:"type:uuid;not null;index"`
	ProfileID       uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:ux_invoice_profile_occurrence,priority:1"`
	OccurrenceIndex int               `gorm:"not null;uniqueIndex:ux_invoice_profile_occurrence,priority:2"`
	InvoiceNumber   int64             `gorm:"not null;uniqueIndex:ux_invoice_account_number,priority:2"`
	Reference       string            `gorm:"type:text;not null"`
	Status          InvoiceStatus     `gorm:"type:text;not null"`
	Currency        string            `gorm:"type:char(3);not null"`
	IssueDate       time.Time         `gorm:"type:date;not null"`
	DueDate         time.Time         `gorm:"type:date;not null"`
	SubtotalAmount  decimal.Decimal   `gorm:"type:decimal(18,4);not null"`
	TaxAmount       decimal.Decimal   `gorm:"type:decimal(18,4);not null"`
	DiscountAmount  decimal.Decimal   `gorm:"type:decimal(18,4);not null"`
	TotalAmount     decimal.Decimal   `gorm:"type:decimal(18,4);not null"`
	TaxRate         *decimal.Decimal  `gorm:"type:decimal(9,4)"`
	DiscountPercent *decimal.Decimal  `gorm:"type:decimal(9,4)"`
	SentAt          *time.Time        `gorm:""`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt       time.Time         `gorm:"not null"`
	UpdatedAt       time.Time         `gorm:"not null"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is a value copy of a profile line-item template.
type InvoiceItem struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	InvoiceID   snowflake.ID    `gorm:"not null;index"`
	Position    int             `gorm:"not null"`
	Description string          `gorm:"type:text;not null"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	VatRate     decimal.Decimal `gorm:"type:decimal(9,4);not null"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// InvoiceSequence holds the last invoice number handed out per account.
type InvoiceSequence struct {
	AccountID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	LastNumber int64     `gorm:"not null"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

type Kind string

const KindInvoiceGenerated Kind = "invoice_generated"

// Notification is an in-app message for the account owner. At most one row
// exists per (kind, invoice).
type Notification struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	AccountID uuid.UUID    `gorm:"type:uuid;not null;index"`
	ProfileID uuid.UUID    `gorm:"type:uuid;not null"`
	InvoiceID snowflake.ID `gorm:"not null;uniqueIndex:ux_notification_kind_invoice,priority:2"`
	Kind      Kind         `gorm:"type:text;not null;uniqueIndex:ux_notification_kind_invoice,priority:1"`
	Message   string       `gorm:"type:text;not null"`
	ReadAt    *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

func (Notification) TableName() string { return "notifications" }

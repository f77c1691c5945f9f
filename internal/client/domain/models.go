package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Client is the freelancer's customer that invoices are addressed to.
type Client struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID         `gorm:"type:uuid;not null;index" json:"account_id"`
	Name      string            `gorm:"not null" json:"name"`
	Email     string            `gorm:"not null" json:"email"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}

func (Client) TableName() string { return "clients" }

type Repository interface {
	// FindByID returns nil, nil when the client does not exist.
	FindByID(ctx context.Context, id uuid.UUID) (*Client, error)
}

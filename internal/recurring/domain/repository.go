package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// LockToken is the profile version captured at load time.
type LockToken int64

type ProfileRepository interface {
	// FindDueProfiles returns ids of active profiles with next_due_date <= asOf.
	FindDueProfiles(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)
	// Load returns the profile with its line items ordered by position.
	Load(ctx context.Context, id uuid.UUID) (*Profile, LockToken, error)
	// Save writes the engine-owned fields if the stored version still equals
	// expected, returning ErrConflict otherwise.
	Save(ctx context.Context, profile *Profile, expected LockToken) error
}

// Notifier receives fire-and-forget requests after a successful commit.
type Notifier interface {
	RequestSend(ctx context.Context, invoiceID snowflake.ID) error
	NotifyGenerated(ctx context.Context, profileID uuid.UUID, invoiceID snowflake.ID) error
}

// Generator runs one generation attempt for one profile.
type Generator interface {
	Run(ctx context.Context, profileID uuid.UUID, asOf time.Time) Outcome
}

package domain

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

type OutcomeKind string

const (
	OutcomeGenerated               OutcomeKind = "generated"
	OutcomeSkippedNotDue           OutcomeKind = "skipped_not_due"
	OutcomeSkippedTerminalStatus   OutcomeKind = "skipped_terminal_status"
	OutcomeSkippedAlreadyGenerated OutcomeKind = "skipped_already_generated"
	OutcomeFailed                  OutcomeKind = "failed"
)

// Outcome is the result of one generation attempt for one profile.
type Outcome struct {
	ProfileID       uuid.UUID
	Kind            OutcomeKind
	InvoiceID       snowflake.ID
	OccurrenceIndex int
	Err             error

	// Degraded is set when the profile was committed but a notifier call
	// failed. NotifyErr carries the joined notifier errors.
	Degraded  bool
	NotifyErr error
}

func (o Outcome) Failed() bool { return o.Kind == OutcomeFailed }

// Conflict reports a failure caused by a concurrent commit on the same profile.
func (o Outcome) Conflict() bool {
	return o.Kind == OutcomeFailed && errors.Is(o.Err, ErrConflict)
}

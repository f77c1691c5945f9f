package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrProfileNotFound = errors.New("profile_not_found")
	// ErrConflict marks a stale lock token at commit time.
	ErrConflict = errors.New("profile_concurrently_modified")
)

// AssemblyError reports profile data the engine cannot turn into an invoice.
// It is not retried; the profile has to be corrected first.
type AssemblyError struct {
	ProfileID uuid.UUID
	Reason    string
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble invoice for profile %s: %s", e.ProfileID, e.Reason)
}

// RepositoryUnavailableError wraps a transient storage failure. The profile
// stays due and the next run picks it up again.
type RepositoryUnavailableError struct {
	Op  string
	Err error
}

func (e *RepositoryUnavailableError) Error() string {
	return fmt.Sprintf("repository unavailable during %s: %v", e.Op, e.Err)
}

func (e *RepositoryUnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err as a RepositoryUnavailableError unless it is nil or
// already one of the domain errors.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var unavailable *RepositoryUnavailableError
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrProfileNotFound) || errors.As(err, &unavailable) {
		return err
	}
	return &RepositoryUnavailableError{Op: op, Err: err}
}

func IsAssemblyError(err error) bool {
	var target *AssemblyError
	return errors.As(err, &target)
}

func IsUnavailable(err error) bool {
	var target *RepositoryUnavailableError
	return errors.As(err, &target)
}

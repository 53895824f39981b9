package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	ErrNotFound          = errors.New("entity not found")
	ErrUnknownKind       = errors.New("unknown entity kind")
	ErrPersistence       = errors.New("persistence failure")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrKindMismatch      = errors.New("entity kind mismatch")
)

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Is matches ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// UnknownKindError is returned when no repository is registered for a kind.
type UnknownKindError struct {
	Kind Kind
}

func (e UnknownKindError) Error() string {
	return fmt.Sprintf("no manager registered for kind %q", e.Kind)
}

// Is matches ErrUnknownKind.
func (e UnknownKindError) Is(target error) bool { return target == ErrUnknownKind }

// PersistenceError wraps a storage failure.
type PersistenceError struct {
	Kind Kind
	ID   string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
}

// Unwrap returns the underlying storage error.
func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// InvalidTransitionError reports a rejected job status change.
type InvalidTransitionError struct {
	JobID string
	From  Status
	To    Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("job %s cannot move from %s to %s", e.JobID, e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

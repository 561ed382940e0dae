// Package persistence provides standardized error types all store
// implementations share.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrInstanceNotFound indicates no instance exists for the given id.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrTemplateNotFound indicates no template exists for the given id.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInstanceAlreadyExists indicates a create collided with an
	// existing instance.
	ErrInstanceAlreadyExists = errors.New("instance already exists")

	// ErrVersionConflict indicates a concurrent write won the race. The
	// caller should reload and retry.
	ErrVersionConflict = errors.New("instance version conflict")
)

// StoreError wraps store errors with operation context.
type StoreError struct {
	Op  string // Operation being performed (e.g. "LoadInstance", "SaveInstance")
	ID  string // Instance or template id
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a store error with context.
func NewStoreError(op, id string, err error) *StoreError {
	return &StoreError{Op: op, ID: id, Err: err}
}

// IsInstanceNotFound checks whether an error indicates a missing instance.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsTemplateNotFound checks whether an error indicates a missing template.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsVersionConflict checks whether an error indicates a lost optimistic
// write.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

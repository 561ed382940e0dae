// Package engine implements the workflow instance state machine: the
// single writer of instance state, orchestrating the stage graph,
// approval ledger and automation runner on every transition attempt.
package engine

import (
	"errors"
	"fmt"

	"github.com/flowgate/flowgate/pkg/approvals"
)

var (
	// ErrInvalidTemplate indicates a structural template defect. It is
	// fatal at template publish/instantiation time, never at runtime.
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrStageBlocked indicates an advance was refused. Recoverable: the
	// caller can vote, wait or cancel. The wrapped reason distinguishes
	// pending from rejected from missing approvers so the UI can render
	// an actionable message.
	ErrStageBlocked = errors.New("stage blocked")

	ErrApprovalPending  = fmt.Errorf("%w: approvals still pending", ErrStageBlocked)
	ErrApprovalRejected = fmt.Errorf("%w: approval was rejected", ErrStageBlocked)
	ErrMissingApprovers = fmt.Errorf("%w: approval gate has no approvers", ErrStageBlocked)

	// ErrNotAnApprover re-exports the ledger's sentinel for callers that
	// only import the engine.
	ErrNotAnApprover = approvals.ErrNotAnApprover

	// ErrInstanceTerminal indicates the instance is completed, cancelled
	// or failed and admits no further transitions.
	ErrInstanceTerminal = errors.New("instance is in a terminal state")

	// ErrInstanceOnHold indicates the instance must be resumed before it
	// can advance.
	ErrInstanceOnHold = errors.New("instance is on hold")

	// ErrInstanceNotActive guards hold/resume transitions: hold needs an
	// active instance, resume a held one.
	ErrInstanceNotActive = errors.New("instance status does not allow this transition")
)

// OperationError wraps engine operation errors with context.
type OperationError struct {
	Op         string // Operation being performed (e.g. "Advance", "Vote")
	InstanceID string
	Err        error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newOperationError(op, instanceID string, err error) *OperationError {
	return &OperationError{Op: op, InstanceID: instanceID, Err: err}
}

// IsInvalidTemplate checks for structural template defects.
func IsInvalidTemplate(err error) bool {
	return errors.Is(err, ErrInvalidTemplate)
}

// IsStageBlocked checks whether an advance was refused for any reason.
func IsStageBlocked(err error) bool {
	return errors.Is(err, ErrStageBlocked)
}

// IsApprovalPending checks whether an advance is waiting on votes.
func IsApprovalPending(err error) bool {
	return errors.Is(err, ErrApprovalPending)
}

// IsApprovalRejected checks whether an advance is blocked by a
// rejection.
func IsApprovalRejected(err error) bool {
	return errors.Is(err, ErrApprovalRejected)
}

// IsNotAnApprover checks whether a vote came from outside the stage's
// approver set.
func IsNotAnApprover(err error) bool {
	return errors.Is(err, ErrNotAnApprover)
}

// IsTerminal checks whether an operation hit a terminal instance.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrInstanceTerminal)
}

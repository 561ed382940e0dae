// Package protocol defines the contracts between the engine and its
// external collaborators. Implementations must be safe for concurrent
// use across different instances and must return failures as errors,
// never panic.
package protocol

import (
	"context"

	"github.com/flowgate/flowgate/pkg/models"
)

// ActionExecutor performs one kind of automation action. Execution is
// best-effort: a false ok or a non-nil error is recorded in the firing
// result but never aborts the transition that triggered it.
type ActionExecutor interface {
	// Kind reports the action type this executor handles.
	Kind() models.ActionType

	// Execute performs the action against a read-only copy of the
	// instance. It returns whether the action took effect and a
	// human-readable detail for the audit trail.
	Execute(ctx context.Context, action models.ActionSpec, instance models.WorkflowInstance) (ok bool, detail string, err error)
}

// NotificationSender delivers send_notification actions. Its failures
// are non-fatal to the workflow.
type NotificationSender interface {
	Send(ctx context.Context, channel string, recipients []string, message string) error
}

// ProjectCreator hands create_project actions to the surrounding
// system.
type ProjectCreator interface {
	CreateProject(ctx context.Context, name, projectTemplateID string, instance models.WorkflowInstance) (projectID string, err error)
}

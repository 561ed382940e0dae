// Package assignuser handles assign_user actions. Like move_to_stage,
// the assignment is surfaced in the firing result and applied by the
// state machine under its own lock.
package assignuser

import (
	"context"
	"fmt"

	"github.com/flowgate/flowgate/pkg/models"
)

type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Kind() models.ActionType {
	return models.ActionAssignUser
}

func (e *Executor) Execute(_ context.Context, action models.ActionSpec, instance models.WorkflowInstance) (bool, string, error) {
	cfg := action.AssignUser
	if cfg == nil || cfg.UserID == "" {
		return false, "", fmt.Errorf("assign_user action has no user")
	}

	if instance.AssignedTo == cfg.UserID {
		return true, fmt.Sprintf("instance already assigned to %q", cfg.UserID), nil
	}

	return true, fmt.Sprintf("requested assignment to %q", cfg.UserID), nil
}

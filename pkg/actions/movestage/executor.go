// Package movestage handles move_to_stage actions. The executor does
// not transition the instance itself: the requested stage is surfaced
// in the firing result and applied through the state machine's advance
// operation, preserving single-writer discipline.
package movestage

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
	return models.ActionMoveToStage
}

func (e *Executor) Execute(_ context.Context, action models.ActionSpec, _ models.WorkflowInstance) (bool, string, error) {
	cfg := action.MoveToStage
	if cfg == nil || cfg.TargetStage == "" {
		return false, "", fmt.Errorf("move_to_stage action has no target stage")
	}

	return true, fmt.Sprintf("requested transition to stage %q", cfg.TargetStage), nil
}

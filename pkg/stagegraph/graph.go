// Package stagegraph validates a template's stage list and answers what
// stage follows another. It is pure and stateless; templates are shared
// read-only across concurrent operations.
package stagegraph

import (
	"errors"
	"fmt"

	"github.com/flowgate/flowgate/pkg/models"
)

var (
	ErrNoStages          = errors.New("template has no stages")
	ErrDuplicateStageID  = errors.New("duplicate stage id")
	ErrUnsatisfiableGate = errors.New("approval-gate has no approvers and no alternative exit")
	ErrUnknownStage      = errors.New("stage not present in template")
)

// Validate checks a template's stage list for structural defects. Stage
// names may repeat; ids are the identity key. An approval-gate with zero
// approvers is rejected unless it has another exit: a time-elapsed
// move_to_stage automation, or a manual override (the stage not being
// required, so advancement is not gated on it).
func Validate(template *models.WorkflowTemplate) error {
	if template == nil || len(template.Stages) == 0 {
		return ErrNoStages
	}

	seen := make(map[string]struct{}, len(template.Stages))

	for _, stage := range template.Stages {
		if _, dup := seen[stage.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateStageID, stage.ID)
		}

		seen[stage.ID] = struct{}{}

		if stage.IsApprovalGate() && len(stage.Approvers) == 0 && stage.Required && !hasTimedExit(stage) {
			return fmt.Errorf("%w: %q", ErrUnsatisfiableGate, stage.ID)
		}
	}

	for _, stage := range template.Stages {
		for _, automation := range stage.Automations {
			if automation.Action.Type != models.ActionMoveToStage || automation.Action.MoveToStage == nil {
				continue
			}

			if _, ok := seen[automation.Action.MoveToStage.TargetStage]; !ok {
				return fmt.Errorf("%w: move_to_stage target %q", ErrUnknownStage, automation.Action.MoveToStage.TargetStage)
			}
		}
	}

	return nil
}

func hasTimedExit(stage *models.Stage) bool {
	for _, automation := range stage.Automations {
		if automation.Trigger.Type == models.TriggerTimeElapsed &&
			automation.Action.Type == models.ActionMoveToStage &&
			automation.Validate() == nil {
			return true
		}
	}

	return false
}

// First returns the id of the first stage in declaration order.
func First(stages []*models.Stage) (string, error) {
	if len(stages) == 0 {
		return "", ErrNoStages
	}

	return stages[0].ID, nil
}

// Next returns the stage that follows currentStageID in declaration
// order. Past the last stage it reports terminal with an empty id.
func Next(stages []*models.Stage, currentStageID string) (string, bool, error) {
	for idx, stage := range stages {
		if stage.ID != currentStageID {
			continue
		}

		if idx == len(stages)-1 {
			return "", true, nil
		}

		return stages[idx+1].ID, false, nil
	}

	return "", false, fmt.Errorf("%w: %q", ErrUnknownStage, currentStageID)
}

// Contains reports whether a stage id exists in the stage list.
func Contains(stages []*models.Stage, stageID string) bool {
	for _, stage := range stages {
		if stage.ID == stageID {
			return true
		}
	}

	return false
}

// Package automations fires a stage's automations for a workflow event
// through registered action executors.
package automations

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowgate/flowgate/pkg/conditions"
	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/registry"
)

type Runner struct {
	registry  *registry.Registry
	evaluator *conditions.Evaluator
	logger    *slog.Logger
}

func NewRunner(reg *registry.Registry, evaluator *conditions.Evaluator, logger *slog.Logger) *Runner {
	return &Runner{
		registry:  reg,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Fire executes the stage's automations whose trigger matches the event,
// in declaration order. Execution is best-effort and independent: a
// failing automation blocks neither the others nor the transition that
// raised the event. Every attempt, including malformed automations that
// were skipped, is recorded in the returned results.
func (r *Runner) Fire(
	ctx context.Context,
	event models.WorkflowEvent,
	stage *models.Stage,
	instance *models.WorkflowInstance,
	gateSatisfied bool,
) []models.AutomationResult {
	results := make([]models.AutomationResult, 0, len(stage.Automations))

	evalCtx := conditions.EvalContext{
		Event:         event,
		Instance:      instance,
		Now:           time.Now().UTC(),
		GateSatisfied: gateSatisfied,
	}

	for _, automation := range stage.Automations {
		if automation.Trigger.Type != event.Type {
			continue
		}

		if !automation.Enabled {
			r.logger.DebugContext(ctx, "Automation disabled, not firing",
				"automation_id", automation.ID, "stage_id", stage.ID)

			continue
		}

		if err := automation.Validate(); err != nil {
			r.logger.WarnContext(ctx, "Skipping malformed automation",
				"automation_id", automation.ID, "stage_id", stage.ID, "error", err)

			results = append(results, models.AutomationResult{
				AutomationID: automation.ID,
				ActionType:   automation.Action.Type,
				Outcome:      models.OutcomeSkipped,
				Detail:       "automation is malformed",
				Error:        err.Error(),
				ExecutedAt:   time.Now().UTC(),
			})

			continue
		}

		if !r.evaluator.Matches(automation.Trigger, evalCtx) {
			continue
		}

		results = append(results, r.execute(ctx, automation, instance))
	}

	return results
}

func (r *Runner) execute(ctx context.Context, automation *models.Automation, instance *models.WorkflowInstance) models.AutomationResult {
	result := models.AutomationResult{
		AutomationID: automation.ID,
		ActionType:   automation.Action.Type,
		Attempts:     1,
		ExecutedAt:   time.Now().UTC(),
	}

	executor, err := r.registry.ExecutorFor(automation.Action.Type)
	if err != nil {
		result.Outcome = models.OutcomeFailed
		result.Error = err.Error()

		return result
	}

	ok, detail, err := executor.Execute(ctx, automation.Action, *instance.Clone())
	result.Detail = detail

	if err != nil {
		result.Outcome = models.OutcomeFailed
		result.Error = err.Error()
		r.logger.WarnContext(ctx, "Automation action failed",
			"automation_id", automation.ID, "action_type", automation.Action.Type, "error", err)

		return result
	}

	if !ok {
		result.Outcome = models.OutcomeFailed

		return result
	}

	result.Outcome = models.OutcomeSucceeded

	// State-changing requests are surfaced for the engine to apply under
	// its own lock rather than mutated here.
	switch automation.Action.Type {
	case models.ActionMoveToStage:
		result.RequestedStage = automation.Action.MoveToStage.TargetStage
	case models.ActionAssignUser:
		result.RequestedAssignee = automation.Action.AssignUser.UserID
	}

	return result
}

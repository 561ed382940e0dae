// Package conditions decides whether a trigger's conditions are
// satisfied given current instance data. Evaluation is deliberately
// permissive: a missing field is "no match", never an error, so
// malformed data cannot block workflow progression. Misses are logged
// as diagnostics.
package conditions

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/flowgate/flowgate/pkg/models"
)

// EvalContext bundles everything a trigger condition can read.
type EvalContext struct {
	Event    models.WorkflowEvent
	Instance *models.WorkflowInstance
	Now      time.Time

	// GateSatisfied is the approval ledger's verdict for the current
	// stage, supplied by the caller for approval_received triggers.
	GateSatisfied bool
}

// Evaluator is pure and stateless apart from its logger; it is safely
// shared read-only across concurrent operations.
type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Matches reports whether the trigger's conditions hold in the given
// context. The caller has already matched the trigger kind to the event
// kind.
func (e *Evaluator) Matches(trigger models.TriggerSpec, evalCtx EvalContext) bool {
	switch trigger.Type {
	case models.TriggerStageEnter, models.TriggerStageComplete:
		return true
	case models.TriggerApprovalReceived:
		return evalCtx.GateSatisfied
	case models.TriggerFieldChange:
		return e.matchesFieldChange(trigger.FieldChange, evalCtx)
	case models.TriggerTimeElapsed:
		return e.matchesTimeElapsed(trigger.TimeElapsed, evalCtx)
	default:
		e.logger.Warn("Unknown trigger type, treating as no match", "trigger_type", trigger.Type)

		return false
	}
}

func (e *Evaluator) matchesFieldChange(cond *models.FieldChangeCondition, evalCtx EvalContext) bool {
	if cond == nil {
		return false
	}

	if evalCtx.Event.Field != cond.Field {
		return false
	}

	oldValue := fmt.Sprint(evalCtx.Event.OldValue)

	newValue := fmt.Sprint(evalCtx.Event.NewValue)
	if oldValue == newValue {
		e.logger.Debug("Field change event carries no change", "field", cond.Field)

		return false
	}

	if cond.Equals != nil && newValue != *cond.Equals {
		return false
	}

	return true
}

func (e *Evaluator) matchesTimeElapsed(cond *models.TimeElapsedCondition, evalCtx EvalContext) bool {
	if cond == nil || evalCtx.Instance == nil {
		return false
	}

	enteredAt, ok := evalCtx.Instance.StageEnteredAt()
	if !ok {
		e.logger.Debug("Instance has no open stage entry, time_elapsed cannot match",
			"instance_id", evalCtx.Instance.ID)

		return false
	}

	return evalCtx.Now.Sub(enteredAt) >= cond.Elapsed()
}

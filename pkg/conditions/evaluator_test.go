package conditions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowgate/flowgate/pkg/log"
	"github.com/flowgate/flowgate/pkg/models"
)

func newEvaluator() *Evaluator {
	return NewEvaluator(log.WithModule("conditions_test"))
}

func TestMatches_StageTriggersAlwaysMatch(t *testing.T) {
	e := newEvaluator()

	assert.True(t, e.Matches(models.TriggerSpec{Type: models.TriggerStageEnter}, EvalContext{}))
	assert.True(t, e.Matches(models.TriggerSpec{Type: models.TriggerStageComplete}, EvalContext{}))
}

func TestMatches_ApprovalReceivedFollowsGateState(t *testing.T) {
	e := newEvaluator()
	trigger := models.TriggerSpec{Type: models.TriggerApprovalReceived}

	assert.False(t, e.Matches(trigger, EvalContext{GateSatisfied: false}))
	assert.True(t, e.Matches(trigger, EvalContext{GateSatisfied: true}))
}

func TestMatches_FieldChange(t *testing.T) {
	e := newEvaluator()
	equals := "critical"

	tests := []struct {
		name    string
		trigger models.TriggerSpec
		event   models.WorkflowEvent
		want    bool
	}{
		{
			name: "named field changed",
			trigger: models.TriggerSpec{
				Type:        models.TriggerFieldChange,
				FieldChange: &models.FieldChangeCondition{Field: "priority"},
			},
			event: models.WorkflowEvent{Type: models.TriggerFieldChange, Field: "priority", OldValue: "low", NewValue: "high"},
			want:  true,
		},
		{
			name: "different field",
			trigger: models.TriggerSpec{
				Type:        models.TriggerFieldChange,
				FieldChange: &models.FieldChangeCondition{Field: "priority"},
			},
			event: models.WorkflowEvent{Type: models.TriggerFieldChange, Field: "budget", OldValue: 1, NewValue: 2},
			want:  false,
		},
		{
			name: "no actual change",
			trigger: models.TriggerSpec{
				Type:        models.TriggerFieldChange,
				FieldChange: &models.FieldChangeCondition{Field: "priority"},
			},
			event: models.WorkflowEvent{Type: models.TriggerFieldChange, Field: "priority", OldValue: "high", NewValue: "high"},
			want:  false,
		},
		{
			name: "equals constraint met",
			trigger: models.TriggerSpec{
				Type:        models.TriggerFieldChange,
				FieldChange: &models.FieldChangeCondition{Field: "priority", Equals: &equals},
			},
			event: models.WorkflowEvent{Type: models.TriggerFieldChange, Field: "priority", OldValue: "low", NewValue: "critical"},
			want:  true,
		},
		{
			name: "equals constraint missed",
			trigger: models.TriggerSpec{
				Type:        models.TriggerFieldChange,
				FieldChange: &models.FieldChangeCondition{Field: "priority", Equals: &equals},
			},
			event: models.WorkflowEvent{Type: models.TriggerFieldChange, Field: "priority", OldValue: "low", NewValue: "high"},
			want:  false,
		},
		{
			name:    "missing condition payload is no match, not an error",
			trigger: models.TriggerSpec{Type: models.TriggerFieldChange},
			event:   models.WorkflowEvent{Type: models.TriggerFieldChange, Field: "priority", OldValue: "a", NewValue: "b"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Matches(tt.trigger, EvalContext{Event: tt.event})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatches_TimeElapsed(t *testing.T) {
	e := newEvaluator()
	now := time.Now().UTC()

	trigger := models.TriggerSpec{
		Type:        models.TriggerTimeElapsed,
		TimeElapsed: &models.TimeElapsedCondition{Duration: 2, Unit: models.UnitHours},
	}

	instance := &models.WorkflowInstance{
		ID:     "inst-1",
		Status: models.InstanceStatusActive,
		StageHistory: []models.StageHistoryEntry{
			{StageID: "review", EnteredAt: now.Add(-3 * time.Hour)},
		},
	}

	assert.True(t, e.Matches(trigger, EvalContext{Instance: instance, Now: now}))

	instance.StageHistory[0].EnteredAt = now.Add(-30 * time.Minute)
	assert.False(t, e.Matches(trigger, EvalContext{Instance: instance, Now: now}))

	// No open stage entry: cannot match, still no error.
	closed := now
	instance.StageHistory[0].ExitedAt = &closed
	assert.False(t, e.Matches(trigger, EvalContext{Instance: instance, Now: now}))
}

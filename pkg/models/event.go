package models

import "time"

// WorkflowEvent is an external occurrence submitted to the engine:
// stage entered or completed, an approval received, a field changed, or
// a time-elapsed sweep tick. The engine evaluates it against the current
// stage's automations.
type WorkflowEvent struct {
	Type    TriggerType `json:"type"     validate:"required"`
	StageID string      `json:"stage_id,omitempty"`

	// Field change payload: the caller supplies both sides of the change.
	Field    string `json:"field,omitempty"`
	OldValue any    `json:"old_value,omitempty"`
	NewValue any    `json:"new_value,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

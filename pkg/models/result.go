package models

import "time"

// AutomationOutcome classifies one automation firing attempt.
type AutomationOutcome string

const (
	OutcomeSucceeded AutomationOutcome = "succeeded"
	OutcomeFailed    AutomationOutcome = "failed"
	// OutcomeSkipped records a malformed automation that was not eligible
	// to fire. Skips are recorded, never silently dropped.
	OutcomeSkipped AutomationOutcome = "skipped"
)

// AutomationResult records one firing attempt for audit and retry
// inspection. Failures never abort the transition that triggered them.
type AutomationResult struct {
	AutomationID string            `json:"automation_id"`
	ActionType   ActionType        `json:"action_type"`
	Outcome      AutomationOutcome `json:"outcome"`
	Detail       string            `json:"detail,omitempty"`
	Error        string            `json:"error,omitempty"`
	Attempts     int               `json:"attempts"`
	ExecutedAt   time.Time         `json:"executed_at"`

	// Requests surfaced for the state machine to apply under its own
	// lock, preserving single-writer discipline.
	RequestedStage    string `json:"requested_stage,omitempty"`
	RequestedAssignee string `json:"requested_assignee,omitempty"`
}

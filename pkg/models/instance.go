package models

import "time"

// InstanceStatus is the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
	InstanceStatusOnHold    InstanceStatus = "on_hold"
	InstanceStatusFailed    InstanceStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
// Terminal instances are retained for audit, never deleted by the engine.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusCancelled || s == InstanceStatusFailed
}

// StageHistoryEntry is one record in the append-only stage audit trail.
// Entries are write-once after ExitedAt is set.
type StageHistoryEntry struct {
	StageID    string     `json:"stage_id"`
	EnteredAt  time.Time  `json:"entered_at"`
	ExitedAt   *time.Time `json:"exited_at,omitempty"`
	Actor      string     `json:"actor"`
	DurationMs *int64     `json:"duration_ms,omitempty"`
}

// InstanceData is the opaque payload the condition evaluator reads.
type InstanceData struct {
	FormData     map[string]any `json:"form_data,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// Field resolves a named field, preferring form data over custom fields.
func (d InstanceData) Field(name string) (any, bool) {
	if v, ok := d.FormData[name]; ok {
		return v, true
	}

	v, ok := d.CustomFields[name]

	return v, ok
}

// WorkflowInstance is a single running execution of a template. It is
// mutated only through the engine's transition operations.
type WorkflowInstance struct {
	ID           string              `json:"id"            validate:"required"`
	TemplateID   string              `json:"template_id"   validate:"required"`
	Status       InstanceStatus      `json:"status"        validate:"required"`
	CurrentStage string              `json:"current_stage,omitempty"`
	StageHistory []StageHistoryEntry `json:"stage_history"`
	Approvals    []Approval          `json:"approvals"`
	Data         InstanceData        `json:"data"`
	Priority     string              `json:"priority,omitempty"`
	AssignedTo   string              `json:"assigned_to,omitempty"`
	DueDate      *time.Time          `json:"due_date,omitempty"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// OpenHistoryIndex returns the index of the open stage-history entry
// (ExitedAt unset), or -1. While the instance is active exactly one
// entry is open: the current stage's.
func (i *WorkflowInstance) OpenHistoryIndex() int {
	for idx := len(i.StageHistory) - 1; idx >= 0; idx-- {
		if i.StageHistory[idx].ExitedAt == nil {
			return idx
		}
	}

	return -1
}

// StageEnteredAt returns when the current stage was entered, if an open
// history entry exists.
func (i *WorkflowInstance) StageEnteredAt() (time.Time, bool) {
	idx := i.OpenHistoryIndex()
	if idx < 0 {
		return time.Time{}, false
	}

	return i.StageHistory[idx].EnteredAt, true
}

// LatestVotes returns the non-superseded vote per approver for a stage.
func (i *WorkflowInstance) LatestVotes(stageID string) map[string]Approval {
	votes := make(map[string]Approval)

	for _, approval := range i.Approvals {
		if approval.StageID != stageID || approval.Superseded {
			continue
		}

		votes[approval.ApproverID] = approval
	}

	return votes
}

// Clone deep-copies the instance so callers can hand copies across the
// store boundary without sharing mutable state.
func (i *WorkflowInstance) Clone() *WorkflowInstance {
	clone := *i

	clone.StageHistory = make([]StageHistoryEntry, len(i.StageHistory))
	copy(clone.StageHistory, i.StageHistory)

	clone.Approvals = make([]Approval, len(i.Approvals))
	copy(clone.Approvals, i.Approvals)

	clone.Data = InstanceData{
		FormData:     cloneMap(i.Data.FormData),
		CustomFields: cloneMap(i.Data.CustomFields),
	}
	clone.Metadata = cloneMap(i.Metadata)

	if i.DueDate != nil {
		due := *i.DueDate
		clone.DueDate = &due
	}

	return &clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

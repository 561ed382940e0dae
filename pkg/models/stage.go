package models

// StageType classifies a node in a template's stage progression.
type StageType string

const (
	StageTypeIntake           StageType = "intake-stage"
	StageTypePhase            StageType = "phase"
	StageTypeApprovalGate     StageType = "approval-gate"
	StageTypeReadinessSection StageType = "readiness-section"
)

// Stage is a single step in a template's ordered progression.
type Stage struct {
	ID          string        `json:"id"          validate:"required"`
	Name        string        `json:"name"        validate:"required"`
	Type        StageType     `json:"type"        validate:"required,oneof=intake-stage phase approval-gate readiness-section"`
	Required    bool          `json:"required"`
	Approvers   []string      `json:"approvers,omitempty"`
	Automations []*Automation `json:"automations,omitempty"`
}

// IsApprovalGate reports whether advancement out of this stage is gated
// on approver votes.
func (s *Stage) IsApprovalGate() bool {
	return s.Type == StageTypeApprovalGate
}

// HasApprover reports whether the given identity may cast a vote for
// this stage.
func (s *Stage) HasApprover(approverID string) bool {
	for _, a := range s.Approvers {
		if a == approverID {
			return true
		}
	}

	return false
}

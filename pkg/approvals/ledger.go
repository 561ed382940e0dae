// Package approvals aggregates per-stage approver votes and resolves
// gate satisfaction. The ledger never writes instance state itself; it
// returns updated vote lists for the state machine to commit.
package approvals

import (
	"errors"
	"fmt"
	"time"

	"github.com/flowgate/flowgate/pkg/models"
)

// ErrNotAnApprover is returned when the voter is not in the stage's
// approver set.
var ErrNotAnApprover = errors.New("not an approver for this stage")

// GateState is the three-valued resolution of an approval gate.
// Rejection is terminal for the stage attempt and is surfaced distinctly
// from "still pending".
type GateState string

const (
	GatePending   GateState = "pending"
	GateSatisfied GateState = "satisfied"
	GateRejected  GateState = "rejected"
)

// Vote is one approver's submission for a stage.
type Vote struct {
	StageID    string
	ApproverID string
	Status     models.ApprovalStatus
	Comments   string
	Timestamp  time.Time
}

// Record appends the vote to the approval history, superseding any prior
// vote from the same approver for the same stage (last-vote-wins, full
// history retained). Re-recording an identical vote still appends a
// fresh audit entry; the resolved gate state is unchanged.
func Record(stage *models.Stage, approvals []models.Approval, vote Vote) ([]models.Approval, error) {
	if !stage.HasApprover(vote.ApproverID) {
		return nil, fmt.Errorf("%w: %q on stage %q", ErrNotAnApprover, vote.ApproverID, stage.ID)
	}

	updated := make([]models.Approval, len(approvals), len(approvals)+1)
	copy(updated, approvals)

	for idx := range updated {
		if updated[idx].StageID == vote.StageID &&
			updated[idx].ApproverID == vote.ApproverID &&
			!updated[idx].Superseded {
			updated[idx].Superseded = true
		}
	}

	updated = append(updated, models.Approval{
		StageID:    vote.StageID,
		ApproverID: vote.ApproverID,
		Status:     vote.Status,
		Comments:   vote.Comments,
		Timestamp:  vote.Timestamp,
	})

	return updated, nil
}

// Resolve determines the gate state for a stage from the vote history.
// A single rejected latest vote marks the gate rejected under either
// policy. With requireAll, every declared approver's latest vote must be
// approved; otherwise the first approval satisfies the gate.
func Resolve(stage *models.Stage, approvals []models.Approval, requireAll bool) GateState {
	latest := make(map[string]models.ApprovalStatus)

	for _, approval := range approvals {
		if approval.StageID != stage.ID || approval.Superseded {
			continue
		}

		if !stage.HasApprover(approval.ApproverID) {
			continue
		}

		latest[approval.ApproverID] = approval.Status
	}

	approved := 0

	for _, status := range latest {
		if status == models.ApprovalStatusRejected {
			return GateRejected
		}

		if status == models.ApprovalStatusApproved {
			approved++
		}
	}

	if len(stage.Approvers) == 0 {
		// A gate with no declared approvers can never be satisfied by
		// approval; it needs a timed or manual exit.
		return GatePending
	}

	if requireAll {
		if approved == len(stage.Approvers) {
			return GateSatisfied
		}

		return GatePending
	}

	if approved > 0 {
		return GateSatisfied
	}

	return GatePending
}

// IsSatisfied is a convenience wrapper over Resolve.
func IsSatisfied(stage *models.Stage, approvals []models.Approval, requireAll bool) bool {
	return Resolve(stage, approvals, requireAll) == GateSatisfied
}

package models

import "time"

// ApprovalStatus is the outcome of a single approver vote.
type ApprovalStatus string

const (
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Approval is one vote in an instance's approval audit trail. At most
// one non-superseded entry exists per (stage, approver) pair; a
// resubmitted vote supersedes the prior one rather than duplicating it.
type Approval struct {
	StageID    string         `json:"stage_id"   validate:"required"`
	ApproverID string         `json:"approver_id" validate:"required"`
	Status     ApprovalStatus `json:"status"      validate:"required,oneof=approved rejected"`
	Comments   string         `json:"comments,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Superseded bool           `json:"superseded,omitempty"`
}

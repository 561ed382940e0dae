// Package web provides the REST API over workflow templates and
// instances.
package web

import (
	"time"

	"github.com/flowgate/flowgate/pkg/models"
)

// InstantiateInstanceRequest is the request body for creating an
// instance from a template.
type InstantiateInstanceRequest struct {
	TemplateID string              `json:"template_id" validate:"required"`
	Actor      string              `json:"actor"       validate:"required"`
	Data       models.InstanceData `json:"data"`
	Priority   string              `json:"priority,omitempty"`
	AssignedTo string              `json:"assigned_to,omitempty"`
	DueDate    *time.Time          `json:"due_date,omitempty"`
	Metadata   map[string]any      `json:"metadata,omitempty"`
}

// AdvanceRequest identifies who is asking the instance to move on.
type AdvanceRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// VoteRequest is an approver's decision for a stage. StageID defaults to
// the instance's current stage when omitted.
type VoteRequest struct {
	StageID    string                `json:"stage_id,omitempty"`
	ApproverID string                `json:"approver_id" validate:"required"`
	Status     models.ApprovalStatus `json:"status"      validate:"required,oneof=approved rejected"`
	Comments   string                `json:"comments,omitempty"`
}

// SubmitEventRequest carries an external workflow event. Field-change
// events supply both sides of the change.
type SubmitEventRequest struct {
	Type     models.TriggerType `json:"type"     validate:"required,oneof=stage_enter stage_complete field_change approval_received time_elapsed"`
	StageID  string             `json:"stage_id,omitempty"`
	Field    string             `json:"field,omitempty"`
	OldValue any                `json:"old_value,omitempty"`
	NewValue any                `json:"new_value,omitempty"`
}

// CancelRequest carries the cancellation actor and optional reason.
type CancelRequest struct {
	Actor  string `json:"actor" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

// StatusChangeRequest is shared by hold and resume.
type StatusChangeRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// TemplateValidationResponse reports whether a template is structurally
// sound.
type TemplateValidationResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// SubmitEventResponse wraps the automation results of a fired event.
type SubmitEventResponse struct {
	Results []models.AutomationResult `json:"results"`
}

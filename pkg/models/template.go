// Package models defines the core domain models for the workflow
// template/instance engine.
package models

import "time"

// TemplateType classifies what kind of request a template drives.
type TemplateType string

const (
	TemplateTypeIntake               TemplateType = "intake"
	TemplateTypeProject              TemplateType = "project"
	TemplateTypeOperationalReadiness TemplateType = "operational-readiness"
	TemplateTypeCustom               TemplateType = "custom"
)

// TemplateSettings carries the per-template behavior switches. Settings
// are immutable after the template is saved; the engine only reads them.
type TemplateSettings struct {
	AllowParallelExecution bool `json:"allow_parallel_execution"`
	AutoProgressOnApproval bool `json:"auto_progress_on_approval"`
	RequireAllApprovals    bool `json:"require_all_approvals"`
	NotifyOnStageChange    bool `json:"notify_on_stage_change"`
}

// WorkflowTemplate is an immutable-per-version workflow definition.
// Stage order defines the default progression.
type WorkflowTemplate struct {
	ID             string           `json:"id"                     validate:"required"`
	OrganizationID string           `json:"organization_id"        validate:"required"`
	Name           string           `json:"name"                   validate:"required,min=3"`
	Description    string           `json:"description,omitempty"`
	Type           TemplateType     `json:"type"                   validate:"required,oneof=intake project operational-readiness custom"`
	Stages         []*Stage         `json:"stages"                 validate:"required,min=1,dive"`
	Settings       TemplateSettings `json:"settings"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	PublishedAt    *time.Time       `json:"published_at,omitempty"`
}

// StageByID looks a stage up by its identifier. Names are cosmetic and
// may repeat; ids are the identity key.
func (t *WorkflowTemplate) StageByID(id string) (*Stage, bool) {
	for _, stage := range t.Stages {
		if stage.ID == id {
			return stage, true
		}
	}

	return nil, false
}

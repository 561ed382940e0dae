package models

import (
	"errors"
	"fmt"
	"time"
)

// TriggerType enumerates the workflow events an automation can bind to.
type TriggerType string

const (
	TriggerStageEnter       TriggerType = "stage_enter"
	TriggerStageComplete    TriggerType = "stage_complete"
	TriggerFieldChange      TriggerType = "field_change"
	TriggerApprovalReceived TriggerType = "approval_received"
	TriggerTimeElapsed      TriggerType = "time_elapsed"
)

// ActionType enumerates the side effects an automation can request.
type ActionType string

const (
	ActionMoveToStage      ActionType = "move_to_stage"
	ActionSendNotification ActionType = "send_notification"
	ActionAssignUser       ActionType = "assign_user"
	ActionCreateProject    ActionType = "create_project"
	ActionWebhook          ActionType = "webhook"
)

// DurationUnit normalizes time_elapsed durations.
type DurationUnit string

const (
	UnitMinutes DurationUnit = "minutes"
	UnitHours   DurationUnit = "hours"
	UnitDays    DurationUnit = "days"
)

var (
	ErrTriggerUnset     = errors.New("automation trigger is not set")
	ErrActionUnset      = errors.New("automation action is not set")
	ErrMissingCondition = errors.New("trigger is missing its condition payload")
	ErrMissingConfig    = errors.New("action is missing its config payload")
)

// FieldChangeCondition scopes a field_change trigger to one named field.
// The old and new values are supplied by the caller on the event itself.
type FieldChangeCondition struct {
	Field string `json:"field" validate:"required"`
	// Equals, when set, additionally requires the new value to stringify
	// to this value for the trigger to match.
	Equals *string `json:"equals,omitempty"`
}

// TimeElapsedCondition matches once the instance has sat in the current
// stage for at least the configured duration.
type TimeElapsedCondition struct {
	Duration int          `json:"duration" validate:"required,gt=0"`
	Unit     DurationUnit `json:"unit"     validate:"required,oneof=minutes hours days"`
}

// Elapsed returns the condition's duration normalized by its unit.
func (c TimeElapsedCondition) Elapsed() time.Duration {
	switch c.Unit {
	case UnitMinutes:
		return time.Duration(c.Duration) * time.Minute
	case UnitHours:
		return time.Duration(c.Duration) * time.Hour
	case UnitDays:
		return time.Duration(c.Duration) * 24 * time.Hour
	default:
		return 0
	}
}

// TriggerSpec is a closed tagged union: Type selects which condition
// payload applies. Trigger kinds without conditions carry no payload.
type TriggerSpec struct {
	Type        TriggerType           `json:"type"`
	FieldChange *FieldChangeCondition `json:"field_change,omitempty"`
	TimeElapsed *TimeElapsedCondition `json:"time_elapsed,omitempty"`
}

// Validate checks that the trigger kind is known and carries the payload
// its kind requires.
func (t TriggerSpec) Validate() error {
	switch t.Type {
	case TriggerStageEnter, TriggerStageComplete, TriggerApprovalReceived:
		return nil
	case TriggerFieldChange:
		if t.FieldChange == nil || t.FieldChange.Field == "" {
			return fmt.Errorf("%w: field_change", ErrMissingCondition)
		}

		return nil
	case TriggerTimeElapsed:
		if t.TimeElapsed == nil || t.TimeElapsed.Duration <= 0 || t.TimeElapsed.Elapsed() == 0 {
			return fmt.Errorf("%w: time_elapsed", ErrMissingCondition)
		}

		return nil
	case "":
		return ErrTriggerUnset
	default:
		return fmt.Errorf("unknown trigger type %q", t.Type)
	}
}

// MoveToStageConfig requests a transition to a specific stage. The
// transition is applied through the state machine's advance operation,
// never by the executor directly.
type MoveToStageConfig struct {
	TargetStage string `json:"target_stage" validate:"required"`
}

// NotificationConfig describes a send_notification action.
type NotificationConfig struct {
	Channel    string   `json:"channel"    validate:"required"`
	Recipients []string `json:"recipients" validate:"required,min=1"`
	Message    string   `json:"message"    validate:"required"`
}

// AssignUserConfig requests that the instance be assigned to a user.
type AssignUserConfig struct {
	UserID string `json:"user_id" validate:"required"`
}

// CreateProjectConfig describes a create_project action handed to the
// surrounding system.
type CreateProjectConfig struct {
	NameTemplate      string `json:"name_template" validate:"required"`
	ProjectTemplateID string `json:"project_template_id,omitempty"`
}

// WebhookRetry bounds webhook delivery attempts.
type WebhookRetry struct {
	Attempts     int `json:"attempts"`
	DelaySeconds int `json:"delay_seconds"`
}

// WebhookConfig describes an outbound webhook call.
type WebhookConfig struct {
	URL     string            `json:"url"    validate:"required,url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Retry   WebhookRetry      `json:"retry,omitempty"`
}

// ActionSpec is a closed tagged union: Type selects which config payload
// applies.
type ActionSpec struct {
	Type          ActionType           `json:"type"`
	MoveToStage   *MoveToStageConfig   `json:"move_to_stage,omitempty"`
	Notification  *NotificationConfig  `json:"send_notification,omitempty"`
	AssignUser    *AssignUserConfig    `json:"assign_user,omitempty"`
	CreateProject *CreateProjectConfig `json:"create_project,omitempty"`
	Webhook       *WebhookConfig       `json:"webhook,omitempty"`
}

// Validate checks that the action kind is known and carries its config.
func (a ActionSpec) Validate() error {
	switch a.Type {
	case ActionMoveToStage:
		if a.MoveToStage == nil || a.MoveToStage.TargetStage == "" {
			return fmt.Errorf("%w: move_to_stage", ErrMissingConfig)
		}
	case ActionSendNotification:
		if a.Notification == nil || a.Notification.Channel == "" {
			return fmt.Errorf("%w: send_notification", ErrMissingConfig)
		}
	case ActionAssignUser:
		if a.AssignUser == nil || a.AssignUser.UserID == "" {
			return fmt.Errorf("%w: assign_user", ErrMissingConfig)
		}
	case ActionCreateProject:
		if a.CreateProject == nil || a.CreateProject.NameTemplate == "" {
			return fmt.Errorf("%w: create_project", ErrMissingConfig)
		}
	case ActionWebhook:
		if a.Webhook == nil || a.Webhook.URL == "" {
			return fmt.Errorf("%w: webhook", ErrMissingConfig)
		}
	case "":
		return ErrActionUnset
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}

	return nil
}

// Automation binds a trigger to an action on a stage.
type Automation struct {
	ID      string      `json:"id"   validate:"required"`
	Name    string      `json:"name,omitempty"`
	Trigger TriggerSpec `json:"trigger"`
	Action  ActionSpec  `json:"action"`
	Enabled bool        `json:"enabled"`
}

// Validate reports whether the automation is eligible to fire. Both the
// trigger and the action must be set and well formed. The automation
// runner records a warning for malformed automations instead of dropping
// them silently.
func (a *Automation) Validate() error {
	if err := a.Trigger.Validate(); err != nil {
		return err
	}

	return a.Action.Validate()
}

// Package events defines the lifecycle notifications the engine
// publishes as instances move through their stages.
package events

import (
	"time"

	"github.com/flowgate/flowgate/pkg/models"
)

type EventType string

// Topic is the stream all engine lifecycle events are published to.
const Topic = "flowgate.instance.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceCreatedEvent   EventType = "instance.created"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceCancelledEvent EventType = "instance.cancelled"
	InstanceHeldEvent      EventType = "instance.held"
	InstanceResumedEvent   EventType = "instance.resumed"

	StageEnteredEvent EventType = "instance.stage.entered"
	StageExitedEvent  EventType = "instance.stage.exited"

	ApprovalRecordedEvent   EventType = "instance.approval.recorded"
	AutomationExecutedEvent EventType = "instance.automation.executed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id"`
	TemplateID string         `json:"template_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type InstanceCreated struct {
	BaseEvent

	InitialStage string `json:"initial_stage"`
	Actor        string `json:"actor"`
}

func (e InstanceCreated) GetType() EventType { return InstanceCreatedEvent }

type InstanceCompleted struct {
	BaseEvent

	TotalDurationMs int64 `json:"total_duration_ms"`
}

func (e InstanceCompleted) GetType() EventType { return InstanceCompletedEvent }

type InstanceCancelled struct {
	BaseEvent

	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

func (e InstanceCancelled) GetType() EventType { return InstanceCancelledEvent }

type InstanceHeld struct {
	BaseEvent

	Actor string `json:"actor"`
}

func (e InstanceHeld) GetType() EventType { return InstanceHeldEvent }

type InstanceResumed struct {
	BaseEvent

	Actor string `json:"actor"`
}

func (e InstanceResumed) GetType() EventType { return InstanceResumedEvent }

type StageEntered struct {
	BaseEvent

	StageID string `json:"stage_id"`
	Actor   string `json:"actor"`
}

func (e StageEntered) GetType() EventType { return StageEnteredEvent }

type StageExited struct {
	BaseEvent

	StageID    string `json:"stage_id"`
	Actor      string `json:"actor"`
	DurationMs int64  `json:"duration_ms"`
}

func (e StageExited) GetType() EventType { return StageExitedEvent }

type ApprovalRecorded struct {
	BaseEvent

	StageID    string                `json:"stage_id"`
	ApproverID string                `json:"approver_id"`
	Status     models.ApprovalStatus `json:"status"`
}

func (e ApprovalRecorded) GetType() EventType { return ApprovalRecordedEvent }

type AutomationExecuted struct {
	BaseEvent

	StageID string                  `json:"stage_id"`
	Result  models.AutomationResult `json:"result"`
}

func (e AutomationExecuted) GetType() EventType { return AutomationExecutedEvent }

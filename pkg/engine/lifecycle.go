package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flowgate/flowgate/pkg/approvals"
	"github.com/flowgate/flowgate/pkg/events"
	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/otelhelper"
	"github.com/flowgate/flowgate/pkg/persistence"
)

// Blocked reasons surfaced through Metrics.
const (
	BlockedReasonTerminal          = "terminal"
	BlockedReasonOnHold            = "on_hold"
	BlockedReasonApprovalsPending  = "approvals_pending"
	BlockedReasonApprovalsRejected = "approvals_rejected"
	BlockedReasonMissingApprovers  = "missing_approvers"
)

// Cancel moves the instance to cancelled from any non-terminal state and
// closes the open history entry. Cancelling an already-cancelled
// instance is a no-op; the instance is retained for audit either way.
func (e *Engine) Cancel(ctx context.Context, instanceID, actor, reason string) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.cancel",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.ActorKey, actor),
	)
	defer span.End()

	unlock := e.lockInstance(instanceID)

	instance, version, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		unlock()
		otelhelper.SetError(span, err)

		return nil, newOperationError("Cancel", instanceID, err)
	}

	if instance.Status == models.InstanceStatusCancelled {
		unlock()

		return instance, nil
	}

	if instance.Status.Terminal() {
		unlock()

		return nil, newOperationError("Cancel", instanceID, ErrInstanceTerminal)
	}

	now := time.Now().UTC()
	closeOpenHistoryEntry(instance, now)

	instance.Status = models.InstanceStatusCancelled
	instance.CurrentStage = ""
	instance.UpdatedAt = now

	if err := e.store.SaveInstance(ctx, instance, version); err != nil {
		unlock()
		otelhelper.SetError(span, err)

		return nil, newOperationError("Cancel", instanceID, err)
	}

	unlock()

	e.logger.InfoContext(ctx, "Workflow instance cancelled",
		"instance_id", instanceID, "actor", actor, "reason", reason)

	e.publish(ctx, instanceID, events.InstanceCancelled{
		BaseEvent: e.newBaseEvent(events.InstanceCancelledEvent, instance),
		Actor:     actor,
		Reason:    reason,
	})

	return instance, nil
}

// Hold pauses an active instance. Held instances refuse advances and
// votes and ignore submitted events until resumed.
func (e *Engine) Hold(ctx context.Context, instanceID, actor string) (*models.WorkflowInstance, error) {
	return e.setStatus(ctx, "Hold", instanceID, actor,
		models.InstanceStatusActive, models.InstanceStatusOnHold, events.InstanceHeldEvent)
}

// Resume reactivates a held instance. The open history entry keeps its
// original EnteredAt, so time-elapsed triggers measure wall time in the
// stage, hold included.
func (e *Engine) Resume(ctx context.Context, instanceID, actor string) (*models.WorkflowInstance, error) {
	return e.setStatus(ctx, "Resume", instanceID, actor,
		models.InstanceStatusOnHold, models.InstanceStatusActive, events.InstanceResumedEvent)
}

func (e *Engine) setStatus(ctx context.Context, op, instanceID, actor string, from, to models.InstanceStatus, eventType events.EventType) (*models.WorkflowInstance, error) {
	unlock := e.lockInstance(instanceID)

	instance, version, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		unlock()

		return nil, newOperationError(op, instanceID, err)
	}

	if instance.Status.Terminal() {
		unlock()

		return nil, newOperationError(op, instanceID, ErrInstanceTerminal)
	}

	if instance.Status != from {
		unlock()

		return nil, newOperationError(op, instanceID, ErrInstanceNotActive)
	}

	instance.Status = to
	instance.UpdatedAt = time.Now().UTC()

	if err := e.store.SaveInstance(ctx, instance, version); err != nil {
		unlock()

		return nil, newOperationError(op, instanceID, err)
	}

	unlock()

	e.logger.InfoContext(ctx, "Workflow instance status changed",
		"instance_id", instanceID, "status", to, "actor", actor)

	base := e.newBaseEvent(eventType, instance)

	switch eventType {
	case events.InstanceHeldEvent:
		e.publish(ctx, instanceID, events.InstanceHeld{BaseEvent: base, Actor: actor})
	case events.InstanceResumedEvent:
		e.publish(ctx, instanceID, events.InstanceResumed{BaseEvent: base, Actor: actor})
	}

	return instance, nil
}

// Instance returns the current committed state of an instance.
func (e *Engine) Instance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	instance, _, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		return nil, newOperationError("Instance", instanceID, err)
	}

	return instance, nil
}

// Instances lists instances matching the filter.
func (e *Engine) Instances(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	return e.store.Instances(ctx, filter)
}

// Metrics derives the read-only progress view of an instance: total time
// in closed stages, gates still awaiting votes, and whether an advance
// would succeed right now.
func (e *Engine) Metrics(ctx context.Context, instanceID string) (*models.InstanceMetrics, error) {
	instance, _, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		return nil, newOperationError("Metrics", instanceID, err)
	}

	template, err := e.store.TemplateByID(ctx, instance.TemplateID)
	if err != nil {
		return nil, newOperationError("Metrics", instanceID, err)
	}

	metrics := &models.InstanceMetrics{InstanceID: instanceID}

	var total int64

	closed := 0

	for _, entry := range instance.StageHistory {
		if entry.DurationMs != nil {
			total += *entry.DurationMs
			closed++
		}
	}

	if closed > 0 {
		metrics.TotalDurationMs = &total
	}

	for _, stage := range template.Stages {
		if stage.IsApprovalGate() &&
			approvals.Resolve(stage, instance.Approvals, template.Settings.RequireAllApprovals) == approvals.GatePending {
			metrics.PendingApprovals++
		}
	}

	metrics.CanProgress, metrics.BlockedReason = e.progressState(instance, template)

	return metrics, nil
}

func (e *Engine) progressState(instance *models.WorkflowInstance, template *models.WorkflowTemplate) (bool, string) {
	if instance.Status.Terminal() {
		return false, BlockedReasonTerminal
	}

	if instance.Status == models.InstanceStatusOnHold {
		return false, BlockedReasonOnHold
	}

	stage, ok := template.StageByID(instance.CurrentStage)
	if !ok {
		return false, BlockedReasonTerminal
	}

	switch gateCheck(stage, instance, template.Settings.RequireAllApprovals) {
	case nil:
		return true, ""
	case ErrApprovalRejected:
		return false, BlockedReasonApprovalsRejected
	case ErrMissingApprovers:
		return false, BlockedReasonMissingApprovers
	default:
		return false, BlockedReasonApprovalsPending
	}
}

// closeOpenHistoryEntry stamps the open entry's exit time and duration.
func closeOpenHistoryEntry(instance *models.WorkflowInstance, at time.Time) {
	idx := instance.OpenHistoryIndex()
	if idx < 0 {
		return
	}

	exited := at
	duration := at.Sub(instance.StageHistory[idx].EnteredAt).Milliseconds()

	instance.StageHistory[idx].ExitedAt = &exited
	instance.StageHistory[idx].DurationMs = &duration
}

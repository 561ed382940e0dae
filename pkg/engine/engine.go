package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowgate/flowgate/pkg/approvals"
	"github.com/flowgate/flowgate/pkg/automations"
	"github.com/flowgate/flowgate/pkg/eventbus"
	"github.com/flowgate/flowgate/pkg/events"
	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/otelhelper"
	"github.com/flowgate/flowgate/pkg/persistence"
	"github.com/flowgate/flowgate/pkg/stagegraph"
)

// Actor ids the engine attributes its own transitions to.
const (
	ActorAutoProgress = "system:auto-progress"
	ActorAutomation   = "system:automation"
)

// maxAutomationHops bounds chained move_to_stage requests so two stages
// whose automations point at each other cannot spin the engine forever.
const maxAutomationHops = 10

// Engine is the single writer of workflow instance state. All
// transitions go through its operations; automations never mutate an
// instance directly, they surface requests the engine applies under its
// own per-instance lock.
type Engine struct {
	store     persistence.Persistence
	runner    *automations.Runner
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
	validator *validator.Validate

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an engine. The publisher may be nil, in which case
// lifecycle events are not emitted.
func New(store persistence.Persistence, runner *automations.Runner, publisher eventbus.EventPublisher, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		runner:    runner,
		publisher: publisher,
		tracer:    otel.Tracer("flowgate/engine"),
		logger:    logger.With("module", "engine"),
		validator: validator.New(),
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockInstance serializes writers of one instance within this process.
// Cross-process writers are caught by the store's version check instead.
func (e *Engine) lockInstance(instanceID string) func() {
	e.mu.Lock()

	lock, ok := e.locks[instanceID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[instanceID] = lock
	}

	e.mu.Unlock()
	lock.Lock()

	return lock.Unlock
}

// InstantiateRequest carries the inputs for creating an instance.
type InstantiateRequest struct {
	InstanceID string // optional; generated when empty
	TemplateID string
	Actor      string
	Data       models.InstanceData
	Priority   string
	AssignedTo string
	DueDate    *time.Time
	Metadata   map[string]any
}

// Instantiate validates the template and creates a new active instance
// positioned at the first stage. The first stage's entry automations are
// not fired here; callers that want them submit a stage_enter event.
func (e *Engine) Instantiate(ctx context.Context, req InstantiateRequest) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.instantiate",
		attribute.String(otelhelper.TemplateIDKey, req.TemplateID),
		attribute.String(otelhelper.ActorKey, req.Actor),
	)
	defer span.End()

	template, err := e.store.TemplateByID(ctx, req.TemplateID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, newOperationError("Instantiate", req.InstanceID, err)
	}

	if err := e.validator.Struct(template); err != nil {
		otelhelper.SetError(span, err)

		return nil, newOperationError("Instantiate", req.InstanceID, fmt.Errorf("%w: %w", ErrInvalidTemplate, err))
	}

	if err := stagegraph.Validate(template); err != nil {
		otelhelper.SetError(span, err)

		return nil, newOperationError("Instantiate", req.InstanceID, fmt.Errorf("%w: %w", ErrInvalidTemplate, err))
	}

	first, err := stagegraph.First(template.Stages)
	if err != nil {
		return nil, newOperationError("Instantiate", req.InstanceID, fmt.Errorf("%w: %w", ErrInvalidTemplate, err))
	}

	instanceID := req.InstanceID
	if instanceID == "" {
		instanceID = uuid.New().String()
	}

	now := time.Now().UTC()

	instance := &models.WorkflowInstance{
		ID:           instanceID,
		TemplateID:   template.ID,
		Status:       models.InstanceStatusActive,
		CurrentStage: first,
		StageHistory: []models.StageHistoryEntry{
			{StageID: first, EnteredAt: now, Actor: req.Actor},
		},
		Approvals:  []models.Approval{},
		Data:       req.Data,
		Priority:   req.Priority,
		AssignedTo: req.AssignedTo,
		DueDate:    req.DueDate,
		Metadata:   req.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := e.store.SaveInstance(ctx, instance, 0); err != nil {
		otelhelper.SetError(span, err)

		return nil, newOperationError("Instantiate", instanceID, err)
	}

	e.logger.InfoContext(ctx, "Workflow instance created",
		"instance_id", instanceID, "template_id", template.ID, "stage_id", first)

	e.publish(ctx, instance.ID, events.InstanceCreated{
		BaseEvent:    e.newBaseEvent(events.InstanceCreatedEvent, instance),
		InitialStage: first,
		Actor:        req.Actor,
	})

	if template.Settings.NotifyOnStageChange {
		e.publish(ctx, instance.ID, events.StageEntered{
			BaseEvent: e.newBaseEvent(events.StageEnteredEvent, instance),
			StageID:   first,
			Actor:     req.Actor,
		})
	}

	return instance, nil
}

// Advance moves the instance from its current stage to the next stage in
// declaration order. A required approval-gate refuses the move until its
// ledger resolves satisfied; leaving the last stage completes the
// instance. The exited stage's stage_complete automations and the
// entered stage's stage_enter automations fire after the transition is
// committed.
func (e *Engine) Advance(ctx context.Context, instanceID, actor string) (*models.WorkflowInstance, error) {
	return e.advance(ctx, advanceRequest{instanceID: instanceID, actor: actor}, 0)
}

// advanceRequest is one transition attempt. A non-empty target routes to
// that stage instead of the declaration-order successor; bypassGate is
// set for automation-driven moves, which are the alternative exit path
// out of a gate and therefore not subject to it.
type advanceRequest struct {
	instanceID string
	actor      string
	target     string
	bypassGate bool
}

func (e *Engine) advance(ctx context.Context, req advanceRequest, hop int) (*models.WorkflowInstance, error) {
	if hop > maxAutomationHops {
		return nil, newOperationError("Advance", req.instanceID,
			fmt.Errorf("aborting after %d chained stage moves", hop))
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.advance",
		attribute.String(otelhelper.InstanceIDKey, req.instanceID),
		attribute.String(otelhelper.ActorKey, req.actor),
	)
	defer span.End()

	template, instance, exited, err := e.commitTransition(ctx, req)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.StageIDKey, instance.CurrentStage))

	e.afterTransition(ctx, template, instance, exited, req.actor, hop)

	return e.reload(ctx, instance)
}

// commitTransition performs the locked read-check-mutate-save section of
// an advance and returns the exited stage. Automations run outside it.
func (e *Engine) commitTransition(ctx context.Context, req advanceRequest) (*models.WorkflowTemplate, *models.WorkflowInstance, *models.Stage, error) {
	unlock := e.lockInstance(req.instanceID)
	defer unlock()

	instance, version, err := e.store.LoadInstance(ctx, req.instanceID)
	if err != nil {
		return nil, nil, nil, newOperationError("Advance", req.instanceID, err)
	}

	if instance.Status.Terminal() {
		return nil, nil, nil, newOperationError("Advance", req.instanceID, ErrInstanceTerminal)
	}

	if instance.Status == models.InstanceStatusOnHold {
		return nil, nil, nil, newOperationError("Advance", req.instanceID, ErrInstanceOnHold)
	}

	template, err := e.store.TemplateByID(ctx, instance.TemplateID)
	if err != nil {
		return nil, nil, nil, newOperationError("Advance", req.instanceID, err)
	}

	stage, ok := template.StageByID(instance.CurrentStage)
	if !ok {
		return nil, nil, nil, newOperationError("Advance", req.instanceID,
			fmt.Errorf("%w: %w: %q", ErrInvalidTemplate, stagegraph.ErrUnknownStage, instance.CurrentStage))
	}

	if !req.bypassGate {
		if err := gateCheck(stage, instance, template.Settings.RequireAllApprovals); err != nil {
			return nil, nil, nil, newOperationError("Advance", req.instanceID, err)
		}
	}

	target := req.target
	terminal := false

	if target == "" {
		target, terminal, err = stagegraph.Next(template.Stages, instance.CurrentStage)
		if err != nil {
			return nil, nil, nil, newOperationError("Advance", req.instanceID, fmt.Errorf("%w: %w", ErrInvalidTemplate, err))
		}
	} else if !stagegraph.Contains(template.Stages, target) {
		return nil, nil, nil, newOperationError("Advance", req.instanceID,
			fmt.Errorf("%w: %q", stagegraph.ErrUnknownStage, target))
	}

	now := time.Now().UTC()
	closeOpenHistoryEntry(instance, now)

	if terminal {
		instance.Status = models.InstanceStatusCompleted
		instance.CurrentStage = ""
	} else {
		instance.CurrentStage = target
		instance.StageHistory = append(instance.StageHistory, models.StageHistoryEntry{
			StageID:   target,
			EnteredAt: now,
			Actor:     req.actor,
		})
	}

	instance.UpdatedAt = now

	if err := e.store.SaveInstance(ctx, instance, version); err != nil {
		return nil, nil, nil, newOperationError("Advance", req.instanceID, err)
	}

	e.logger.InfoContext(ctx, "Stage transition committed",
		"instance_id", instance.ID, "from", stage.ID, "to", instance.CurrentStage,
		"status", instance.Status, "actor", req.actor)

	return template, instance, stage, nil
}

// gateCheck refuses an advance out of a required approval-gate whose
// ledger has not resolved satisfied. Pending and rejected are distinct
// refusals: pending invites more votes, rejected ends the attempt.
func gateCheck(stage *models.Stage, instance *models.WorkflowInstance, requireAll bool) error {
	if !stage.IsApprovalGate() || !stage.Required {
		return nil
	}

	switch approvals.Resolve(stage, instance.Approvals, requireAll) {
	case approvals.GateSatisfied:
		return nil
	case approvals.GateRejected:
		return ErrApprovalRejected
	default:
		if len(stage.Approvers) == 0 {
			return ErrMissingApprovers
		}

		return ErrApprovalPending
	}
}

// afterTransition handles everything that must not hold the instance
// lock: event publication and automation side effects.
func (e *Engine) afterTransition(ctx context.Context, template *models.WorkflowTemplate, instance *models.WorkflowInstance, exited *models.Stage, actor string, hop int) {
	now := time.Now().UTC()

	if template.Settings.NotifyOnStageChange {
		duration := int64(0)
		if idx := len(instance.StageHistory) - 1; idx >= 0 {
			for i := idx; i >= 0; i-- {
				if instance.StageHistory[i].StageID == exited.ID && instance.StageHistory[i].DurationMs != nil {
					duration = *instance.StageHistory[i].DurationMs

					break
				}
			}
		}

		e.publish(ctx, instance.ID, events.StageExited{
			BaseEvent:  e.newBaseEvent(events.StageExitedEvent, instance),
			StageID:    exited.ID,
			Actor:      actor,
			DurationMs: duration,
		})
	}

	if instance.Status == models.InstanceStatusCompleted {
		total := int64(0)
		for _, entry := range instance.StageHistory {
			if entry.DurationMs != nil {
				total += *entry.DurationMs
			}
		}

		e.publish(ctx, instance.ID, events.InstanceCompleted{
			BaseEvent:       e.newBaseEvent(events.InstanceCompletedEvent, instance),
			TotalDurationMs: total,
		})
	} else if template.Settings.NotifyOnStageChange {
		e.publish(ctx, instance.ID, events.StageEntered{
			BaseEvent: e.newBaseEvent(events.StageEnteredEvent, instance),
			StageID:   instance.CurrentStage,
			Actor:     actor,
		})
	}

	completeEvent := models.WorkflowEvent{Type: models.TriggerStageComplete, StageID: exited.ID, OccurredAt: now}
	results := e.runner.Fire(ctx, completeEvent, exited, instance, false)
	e.recordResults(ctx, instance, exited.ID, results)
	e.applyRequests(ctx, instance.ID, results, hop)

	if instance.Status != models.InstanceStatusActive {
		return
	}

	entered, ok := template.StageByID(instance.CurrentStage)
	if !ok {
		return
	}

	enterEvent := models.WorkflowEvent{Type: models.TriggerStageEnter, StageID: entered.ID, OccurredAt: now}
	results = e.runner.Fire(ctx, enterEvent, entered, instance, false)
	e.recordResults(ctx, instance, entered.ID, results)
	e.applyRequests(ctx, instance.ID, results, hop)
}

// Vote records an approver's decision for a stage. A later vote from the
// same approver supersedes the earlier one. When the template enables
// auto-progress and the vote newly satisfies the current stage's gate,
// the engine advances on the voter's behalf.
func (e *Engine) Vote(ctx context.Context, instanceID, stageID, approverID string, status models.ApprovalStatus, comments string) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.vote",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.StageIDKey, stageID),
		attribute.String(otelhelper.ApproverIDKey, approverID),
	)
	defer span.End()

	template, instance, stage, priorState, err := e.commitVote(ctx, instanceID, stageID, approverID, status, comments)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.publish(ctx, instance.ID, events.ApprovalRecorded{
		BaseEvent:  e.newBaseEvent(events.ApprovalRecordedEvent, instance),
		StageID:    stage.ID,
		ApproverID: approverID,
		Status:     status,
	})

	newState := approvals.Resolve(stage, instance.Approvals, template.Settings.RequireAllApprovals)

	event := models.WorkflowEvent{Type: models.TriggerApprovalReceived, StageID: stage.ID, OccurredAt: time.Now().UTC()}
	results := e.runner.Fire(ctx, event, stage, instance, newState == approvals.GateSatisfied)
	e.recordResults(ctx, instance, stage.ID, results)
	e.applyRequests(ctx, instance.ID, results, 0)

	if template.Settings.AutoProgressOnApproval &&
		newState == approvals.GateSatisfied &&
		priorState != approvals.GateSatisfied &&
		stage.ID == instance.CurrentStage {
		if _, err := e.advance(ctx, advanceRequest{instanceID: instanceID, actor: ActorAutoProgress}, 0); err != nil {
			e.logger.WarnContext(ctx, "Auto-progress after approval did not advance",
				"instance_id", instanceID, "stage_id", stage.ID, "error", err)
		}
	}

	return e.reload(ctx, instance)
}

func (e *Engine) commitVote(ctx context.Context, instanceID, stageID, approverID string, status models.ApprovalStatus, comments string) (*models.WorkflowTemplate, *models.WorkflowInstance, *models.Stage, approvals.GateState, error) {
	unlock := e.lockInstance(instanceID)
	defer unlock()

	instance, version, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		return nil, nil, nil, approvals.GatePending, newOperationError("Vote", instanceID, err)
	}

	if instance.Status.Terminal() {
		return nil, nil, nil, approvals.GatePending, newOperationError("Vote", instanceID, ErrInstanceTerminal)
	}

	if instance.Status == models.InstanceStatusOnHold {
		return nil, nil, nil, approvals.GatePending, newOperationError("Vote", instanceID, ErrInstanceOnHold)
	}

	template, err := e.store.TemplateByID(ctx, instance.TemplateID)
	if err != nil {
		return nil, nil, nil, approvals.GatePending, newOperationError("Vote", instanceID, err)
	}

	if stageID == "" {
		stageID = instance.CurrentStage
	}

	stage, ok := template.StageByID(stageID)
	if !ok {
		return nil, nil, nil, approvals.GatePending, newOperationError("Vote", instanceID,
			fmt.Errorf("%w: %q", stagegraph.ErrUnknownStage, stageID))
	}

	priorState := approvals.Resolve(stage, instance.Approvals, template.Settings.RequireAllApprovals)

	updated, err := approvals.Record(stage, instance.Approvals, approvals.Vote{
		StageID:    stage.ID,
		ApproverID: approverID,
		Status:     status,
		Comments:   comments,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return nil, nil, nil, approvals.GatePending, newOperationError("Vote", instanceID, err)
	}

	instance.Approvals = updated
	instance.UpdatedAt = time.Now().UTC()

	if err := e.store.SaveInstance(ctx, instance, version); err != nil {
		return nil, nil, nil, approvals.GatePending, newOperationError("Vote", instanceID, err)
	}

	e.logger.InfoContext(ctx, "Approval recorded",
		"instance_id", instanceID, "stage_id", stage.ID, "approver_id", approverID, "status", status)

	return template, instance, stage, priorState, nil
}

// SubmitEvent evaluates an external event against the current stage's
// automations. It mutates no instance state itself; any state changes
// come from the fired automations' requests, applied under the engine's
// lock. Non-active instances ignore events.
func (e *Engine) SubmitEvent(ctx context.Context, instanceID string, event models.WorkflowEvent) ([]models.AutomationResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.submit_event",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.EventTypeKey, string(event.Type)),
	)
	defer span.End()

	instance, _, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, newOperationError("SubmitEvent", instanceID, err)
	}

	if instance.Status != models.InstanceStatusActive {
		e.logger.DebugContext(ctx, "Ignoring event for non-active instance",
			"instance_id", instanceID, "status", instance.Status, "event_type", event.Type)

		return []models.AutomationResult{}, nil
	}

	if event.StageID != "" && event.StageID != instance.CurrentStage {
		e.logger.DebugContext(ctx, "Ignoring event for a stage the instance is not in",
			"instance_id", instanceID, "event_stage", event.StageID, "current_stage", instance.CurrentStage)

		return []models.AutomationResult{}, nil
	}

	template, err := e.store.TemplateByID(ctx, instance.TemplateID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, newOperationError("SubmitEvent", instanceID, err)
	}

	stage, ok := template.StageByID(instance.CurrentStage)
	if !ok {
		return nil, newOperationError("SubmitEvent", instanceID,
			fmt.Errorf("%w: %w: %q", ErrInvalidTemplate, stagegraph.ErrUnknownStage, instance.CurrentStage))
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	gateSatisfied := approvals.IsSatisfied(stage, instance.Approvals, template.Settings.RequireAllApprovals)

	results := e.runner.Fire(ctx, event, stage, instance, gateSatisfied)
	e.recordResults(ctx, instance, stage.ID, results)
	e.applyRequests(ctx, instanceID, results, 0)

	return results, nil
}

// applyRequests applies the state-changing requests surfaced by
// successful automations: assignments directly, stage moves as fresh
// advance calls that take the lock themselves.
func (e *Engine) applyRequests(ctx context.Context, instanceID string, results []models.AutomationResult, hop int) {
	for _, result := range results {
		if result.Outcome != models.OutcomeSucceeded {
			continue
		}

		if result.RequestedAssignee != "" {
			if err := e.assign(ctx, instanceID, result.RequestedAssignee); err != nil {
				e.logger.WarnContext(ctx, "Automation-requested assignment failed",
					"instance_id", instanceID, "automation_id", result.AutomationID, "error", err)
			}
		}

		if result.RequestedStage != "" {
			req := advanceRequest{
				instanceID: instanceID,
				actor:      ActorAutomation,
				target:     result.RequestedStage,
				bypassGate: true,
			}
			if _, err := e.advance(ctx, req, hop+1); err != nil {
				e.logger.WarnContext(ctx, "Automation-requested stage move failed",
					"instance_id", instanceID, "automation_id", result.AutomationID,
					"target", result.RequestedStage, "error", err)
			}
		}
	}
}

func (e *Engine) assign(ctx context.Context, instanceID, userID string) error {
	unlock := e.lockInstance(instanceID)
	defer unlock()

	instance, version, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.Status.Terminal() {
		return ErrInstanceTerminal
	}

	instance.AssignedTo = userID
	instance.UpdatedAt = time.Now().UTC()

	return e.store.SaveInstance(ctx, instance, version)
}

// recordResults publishes one AutomationExecuted event per result so the
// audit trail captures skips and failures alongside successes.
func (e *Engine) recordResults(ctx context.Context, instance *models.WorkflowInstance, stageID string, results []models.AutomationResult) {
	for _, result := range results {
		if result.Outcome == models.OutcomeFailed {
			e.logger.WarnContext(ctx, "Automation failed",
				"instance_id", instance.ID, "stage_id", stageID,
				"automation_id", result.AutomationID, "error", result.Error)
		}

		e.publish(ctx, instance.ID, events.AutomationExecuted{
			BaseEvent: e.newBaseEvent(events.AutomationExecutedEvent, instance),
			StageID:   stageID,
			Result:    result,
		})
	}
}

// reload returns the freshest committed view of the instance, falling
// back to the in-hand copy if the read fails.
func (e *Engine) reload(ctx context.Context, instance *models.WorkflowInstance) (*models.WorkflowInstance, error) {
	fresh, _, err := e.store.LoadInstance(ctx, instance.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "Reload after transition failed, returning committed copy",
			"instance_id", instance.ID, "error", err)

		return instance, nil
	}

	return fresh, nil
}

func (e *Engine) newBaseEvent(eventType events.EventType, instance *models.WorkflowInstance) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: instance.ID,
		TemplateID: instance.TemplateID,
	}
}

// publish is best-effort: a broken bus never fails a transition.
func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish lifecycle event",
			"event_type", event.GetType(), "instance_id", key, "error", err)
	}
}

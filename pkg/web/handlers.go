package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowgate/flowgate/pkg/engine"
	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/persistence"
	"github.com/flowgate/flowgate/pkg/stagegraph"
)

type APIHandlers struct {
	engine    *engine.Engine
	store     persistence.Persistence
	validator *validator.Validate
}

func NewAPIHandlers(eng *engine.Engine, store persistence.Persistence, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:    eng,
		store:     store,
		validator: validate,
	}
}

// RegisterRoutes wires all template and instance endpoints onto the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	templates := app.Group("/templates")
	templates.Get("/", h.GetTemplates)
	templates.Post("/", h.SaveTemplate)
	templates.Get("/:id", h.GetTemplate)
	templates.Post("/:id/validate", h.ValidateTemplate)

	instances := app.Group("/instances")
	instances.Get("/", h.GetInstances)
	instances.Post("/", h.InstantiateInstance)
	instances.Get("/:id", h.GetInstance)
	instances.Get("/:id/metrics", h.GetInstanceMetrics)
	instances.Post("/:id/advance", h.AdvanceInstance)
	instances.Post("/:id/vote", h.VoteInstance)
	instances.Post("/:id/events", h.SubmitInstanceEvent)
	instances.Post("/:id/hold", h.HoldInstance)
	instances.Post("/:id/resume", h.ResumeInstance)
	instances.Post("/:id/cancel", h.CancelInstance)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	templates, err := h.store.Templates(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(templates)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.store.TemplateByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(template)
}

// SaveTemplate upserts a template after structural validation. Instances
// already running on the previous version keep their semantics only if
// the caller preserves stage ids; the API does not diff versions.
func (h *APIHandlers) SaveTemplate(c fiber.Ctx) error {
	var template models.WorkflowTemplate
	if err := c.Bind().JSON(&template); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(&template); err != nil {
		return badRequest(c, err.Error())
	}

	if err := stagegraph.Validate(&template); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if err := h.store.SaveTemplate(c.Context(), &template); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

// ValidateTemplate dry-runs the structural checks a stored template
// would face at instantiation time.
func (h *APIHandlers) ValidateTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.store.TemplateByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	response := TemplateValidationResponse{Valid: true}

	if err := h.validator.Struct(template); err != nil {
		response.Valid = false
		response.Errors = append(response.Errors, err.Error())
	}

	if err := stagegraph.Validate(template); err != nil {
		response.Valid = false
		response.Errors = append(response.Errors, err.Error())
	}

	return c.JSON(response)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	filter := persistence.InstanceFilter{
		Status:     models.InstanceStatus(c.Query("status")),
		TemplateID: c.Query("template_id"),
	}

	instances, err := h.engine.Instances(c.Context(), filter)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(instances)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := h.engine.Instance(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetInstanceMetrics(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	metrics, err := h.engine.Metrics(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(metrics)
}

func (h *APIHandlers) InstantiateInstance(c fiber.Ctx) error {
	var req InstantiateInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Instantiate(c.Context(), engine.InstantiateRequest{
		TemplateID: req.TemplateID,
		Actor:      req.Actor,
		Data:       req.Data,
		Priority:   req.Priority,
		AssignedTo: req.AssignedTo,
		DueDate:    req.DueDate,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) AdvanceInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req AdvanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Advance(c.Context(), id, req.Actor)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) VoteInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req VoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Vote(c.Context(), id, req.StageID, req.ApproverID, req.Status, req.Comments)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) SubmitInstanceEvent(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req SubmitEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	results, err := h.engine.SubmitEvent(c.Context(), id, models.WorkflowEvent{
		Type:       req.Type,
		StageID:    req.StageID,
		Field:      req.Field,
		OldValue:   req.OldValue,
		NewValue:   req.NewValue,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(SubmitEventResponse{Results: results})
}

func (h *APIHandlers) HoldInstance(c fiber.Ctx) error {
	return h.changeStatus(c, h.engine.Hold)
}

func (h *APIHandlers) ResumeInstance(c fiber.Ctx) error {
	return h.changeStatus(c, h.engine.Resume)
}

func (h *APIHandlers) changeStatus(c fiber.Ctx, op func(ctx context.Context, instanceID, actor string) (*models.WorkflowInstance, error)) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req StatusChangeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := op(c.Context(), id, req.Actor)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	var req CancelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Cancel(c.Context(), id, req.Actor, req.Reason)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

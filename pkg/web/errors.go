package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowgate/flowgate/pkg/engine"
	"github.com/flowgate/flowgate/pkg/persistence"
	"github.com/flowgate/flowgate/pkg/stagegraph"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps the engine and store error taxonomy onto RFC
// 7807 problem responses. Blocked advances are conflicts, not server
// errors: the caller can vote, wait, or cancel.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case engine.IsApprovalRejected(err):
		return conflict(c, "approval_rejected", "a required approval was rejected; the stage cannot be exited by advancing")

	case engine.IsStageBlocked(err):
		return conflict(c, "approvals_pending", err.Error())

	case engine.IsNotAnApprover(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("not_an_approver").
			WithDetail("the voter is not in the stage's approver set")

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case engine.IsTerminal(err):
		return conflict(c, "instance_terminal", "the instance is completed, cancelled or failed")

	case errors.Is(err, engine.ErrInstanceOnHold):
		return conflict(c, "instance_on_hold", "the instance is on hold and must be resumed first")

	case errors.Is(err, engine.ErrInstanceNotActive):
		return conflict(c, "invalid_status_transition", err.Error())

	case engine.IsInvalidTemplate(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("invalid_template").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case errors.Is(err, stagegraph.ErrUnknownStage):
		return badRequest(c, err.Error())

	case persistence.IsInstanceNotFound(err):
		return notFound(c, "workflow instance not found")

	case persistence.IsTemplateNotFound(err):
		return notFound(c, "workflow template not found")

	case persistence.IsVersionConflict(err):
		return conflict(c, "version_conflict", "the instance was modified concurrently; reload and retry")

	default:
		return internalError(c, err)
	}
}

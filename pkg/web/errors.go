package web

import (
	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/cmsflow/approvals/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func unauthorized(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusUnauthorized, "unauthorized", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError maps service layer error classes to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, notFoundType(err), err.Error())

	case services.IsPermissionDenied(err):
		return problem(c, fiber.StatusForbidden, "permission_denied", err.Error())

	case services.IsInvalidState(err):
		return problem(c, fiber.StatusConflict, "invalid_state", err.Error())

	case services.IsConfigurationError(err):
		return problem(c, fiber.StatusUnprocessableEntity, "configuration_error", err.Error())

	case services.IsConflictError(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	default:
		return internalError(c, err)
	}
}

func notFoundType(err error) string {
	switch {
	case persistence.IsWorkflowNotFound(err):
		return "workflow_not_found"
	case persistence.IsInstanceNotFound(err):
		return "instance_not_found"
	case persistence.IsTaskNotFound(err):
		return "task_not_found"
	default:
		return "not_found"
	}
}

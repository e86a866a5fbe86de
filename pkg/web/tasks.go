package web

import (
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetPendingTasks(c fiber.Ctx) error {
	limit, offset, err := parsePage(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.engine.ListPendingTasks(c.Context(), CurrentUser(c), limit, offset)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetCompletedTasks(c fiber.Ctx) error {
	limit, offset, err := parsePage(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.engine.ListCompletedTasks(c.Context(), CurrentUser(c), limit, offset)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	view, err := h.engine.GetTask(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) ClaimTask(c fiber.Ctx) error {
	task, err := h.engine.ClaimTask(c.Context(), c.Params("id"), CurrentUser(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) ApproveTask(c fiber.Ctx) error {
	var req DecisionRequest
	if ok, err := h.bindDecision(c, &req); !ok {
		return err
	}

	task, err := h.engine.ApproveTask(c.Context(), c.Params("id"), CurrentUser(c), req.Comment)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) RejectTask(c fiber.Ctx) error {
	var req DecisionRequest
	if ok, err := h.bindDecision(c, &req); !ok {
		return err
	}

	task, err := h.engine.RejectTask(c.Context(), c.Params("id"), CurrentUser(c), req.Comment)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

// bindDecision accepts an empty body as a decision without comment. When it
// reports false the problem response has already been written.
func (h *APIHandlers) bindDecision(c fiber.Ctx, req *DecisionRequest) (bool, error) {
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(req); err != nil {
			return false, badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return false, badRequest(c, err.Error())
	}

	return true, nil
}

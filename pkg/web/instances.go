package web

import (
	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	initiator := callerID(c)
	if initiator == "" {
		return unauthorized(c, UserIDHeader+" header is required")
	}

	var req StartInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Start(c.Context(), services.StartRequest{
		WorkflowCode:      req.WorkflowCode,
		BusinessType:      req.BusinessType,
		BusinessID:        req.BusinessID,
		BusinessTitle:     req.BusinessTitle,
		InitiatorID:       initiator,
		ApprovalMode:      models.ApprovalMode(req.ApprovalMode),
		ApproverOverrides: req.ApproverOverrides,
		Comment:           req.Comment,
		RequireApproval:   req.RequireApproval,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	limit, offset, err := parsePage(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	req := services.ListInstancesRequest{
		Limit:        limit,
		Offset:       offset,
		WorkflowCode: c.Query("workflow_code"),
		BusinessType: c.Query("business_type"),
		BusinessID:   c.Query("business_id"),
		InitiatorID:  c.Query("initiator_id"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.InstanceStatus(statusStr)
		req.Status = &status
	}

	result, err := h.engine.ListInstances(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	view, err := h.engine.GetInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	instance, err := h.engine.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

// WithdrawBusiness cancels the running instance of a business object.
func (h *APIHandlers) WithdrawBusiness(c fiber.Ctx) error {
	instance, err := h.engine.Withdraw(c.Context(), c.Params("type"), c.Params("businessId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

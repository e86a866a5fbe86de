package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Workflow is the workflow definition store.
type Workflow struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	// Pagination
	Limit  int `validate:"min=1,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	Status *models.WorkflowStatus

	// Sorting
	SortBy    string `validate:"oneof=created_at updated_at name code"`
	SortOrder string `validate:"oneof=asc desc"`

	IncludeNodes bool
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering, sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	err := w.validateListWorkflowsRequest(&req)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	result, err := w.persistence.WorkflowRepository().ListWorkflows(ctx, persistence.ListWorkflowsOptions{
		Limit:        req.Limit,
		Offset:       req.Offset,
		Status:       req.Status,
		SortBy:       req.SortBy,
		SortOrder:    req.SortOrder,
		IncludeNodes: req.IncludeNodes,
	})
	if err != nil {
		if persistence.IsInvalidSortField(err) {
			return nil, ErrInvalidSortField
		}

		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   result.Workflows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// validateListWorkflowsRequest validates and sets defaults for the request.
func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	req.Limit, req.Offset = normalizePage(req.Limit, req.Offset)

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	if !slices.Contains(persistence.WorkflowSortFields, req.SortBy) {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(persistence.WorkflowSortFields, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.Status != nil && !slices.Contains(models.WorkflowStatuses, *req.Status) {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status '%s'", *req.Status),
			ErrInvalidStatus,
		)
	}

	return nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, persistence.NewWorkflowError("FetchByID", id, ErrWorkflowNotFound)
	}

	return workflow, nil
}

// FetchByCode retrieves the live workflow using code.
func (w *Workflow) FetchByCode(ctx context.Context, code string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, persistence.NewWorkflowCodeError("FetchByCode", code, ErrWorkflowNotFound)
	}

	return workflow, nil
}

// Create adds a new workflow definition. Status defaults to DRAFT.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate workflow ID: %w", err)
	}

	now := time.Now().UTC()
	workflow.ID = id.String()
	workflow.Code = strings.TrimSpace(workflow.Code)
	workflow.Version = 1
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.DeletedAt = nil

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	err = w.validateDefinition("Create", workflow)
	if err != nil {
		return nil, err
	}

	err = w.ensureCodeAvailable(ctx, workflow)
	if err != nil {
		return nil, err
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, mapSaveError("create", err)
	}

	return workflow, nil
}

// Update replaces an existing workflow definition, nodes included, and bumps its version.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	workflow *models.Workflow,
) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.Code = strings.TrimSpace(workflow.Code)
	workflow.Version = existing.Version + 1
	workflow.CreatedBy = existing.CreatedBy
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()
	workflow.DeletedAt = nil

	if workflow.Status == "" {
		workflow.Status = existing.Status
	}

	err = w.validateDefinition("Update", workflow)
	if err != nil {
		return nil, err
	}

	err = w.ensureCodeAvailable(ctx, workflow)
	if err != nil {
		return nil, err
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, mapSaveError("update", err)
	}

	return workflow, nil
}

// SetStatus changes the lifecycle status of a workflow.
func (w *Workflow) SetStatus(ctx context.Context, workflowID string, status models.WorkflowStatus) (*models.Workflow, error) {
	if !slices.Contains(models.WorkflowStatuses, status) {
		return nil, NewValidationError("SetStatus", "INVALID_STATUS", fmt.Sprintf("invalid status '%s'", status), ErrInvalidStatus)
	}

	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == status {
		return workflow, nil
	}

	workflow.Status = status

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, mapSaveError("update status of", err)
	}

	return workflow, nil
}

// Delete soft deletes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	_, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return err
	}

	err = w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

func (w *Workflow) validateDefinition(op string, workflow *models.Workflow) error {
	// Blank ids are assigned on save; explicit ones must be unique.
	seen := make(map[string]bool, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if node == nil {
			return NewValidationError(op, "INVALID_NODE", "workflow nodes cannot be null", ErrInvalidRequest)
		}

		if !node.NodeType.Valid() {
			return NewValidationError(op, "INVALID_NODE_TYPE", fmt.Sprintf("invalid node type '%s'", node.NodeType), ErrInvalidNodeType)
		}

		if node.ID == "" {
			continue
		}

		if seen[node.ID] {
			return NewValidationError(op, "DUPLICATE_NODE_ID", fmt.Sprintf("duplicate node id '%s'", node.ID), ErrInvalidRequest)
		}

		seen[node.ID] = true
	}

	err := w.validate.Struct(workflow)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(op, "INVALID_WORKFLOW", validationErrors.Error(), ErrInvalidRequest)
		}

		return NewValidationError(op, "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	return nil
}

func (w *Workflow) ensureCodeAvailable(ctx context.Context, workflow *models.Workflow) error {
	holder, err := w.persistence.WorkflowRepository().GetByCode(ctx, workflow.Code)
	if err != nil {
		return fmt.Errorf("failed to check workflow code: %w", err)
	}

	if holder != nil && holder.ID != workflow.ID {
		return &ServiceError{
			Op:      "ensureCodeAvailable",
			Code:    "WORKFLOW_CODE_EXISTS",
			Message: fmt.Sprintf("workflow code '%s' is already in use", workflow.Code),
			Err:     ErrWorkflowCodeExists,
		}
	}

	return nil
}

func mapSaveError(action string, err error) error {
	if persistence.IsWorkflowCodeExists(err) {
		return err
	}

	return fmt.Errorf("failed to %s workflow: %w", action, err)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}

	if limit > 100 {
		limit = 100
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

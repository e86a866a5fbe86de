package file

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/google/uuid"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store store
}

// GetByID returns a live workflow or nil.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	found, err := wr.store.read(workflowsDir, id, &workflow)
	if err != nil {
		return nil, err
	}

	if !found || workflow.DeletedAt != nil {
		return nil, nil
	}

	return &workflow, nil
}

// GetByCode returns the live workflow using code or nil.
func (wr *WorkflowRepository) GetByCode(_ context.Context, code string) (*models.Workflow, error) {
	return findLiveByCode(wr.store, code)
}

func findLiveByCode(s store, code string) (*models.Workflow, error) {
	workflows, err := decodeAll(s, workflowsDir, func(w *models.Workflow) bool {
		return w.DeletedAt == nil && w.Code == code
	})
	if err != nil {
		return nil, err
	}

	if len(workflows) == 0 {
		return nil, nil
	}

	return workflows[0], nil
}

// ListWorkflows returns paginated and filtered workflows with in-memory operations.
func (wr *WorkflowRepository) ListWorkflows(_ context.Context, opts persistence.ListWorkflowsOptions) (*persistence.ListWorkflowsResult, error) {
	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if !slices.Contains(persistence.WorkflowSortFields, opts.SortBy) {
		return nil, persistence.ErrInvalidSortField
	}

	workflows, err := decodeAll(wr.store, workflowsDir, func(w *models.Workflow) bool {
		return w.DeletedAt == nil && (opts.Status == nil || w.Status == *opts.Status)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}

	ascending := strings.EqualFold(opts.SortOrder, "asc")

	less := func(a, b *models.Workflow) bool {
		switch opts.SortBy {
		case "name":
			return a.Name < b.Name
		case "code":
			return a.Code < b.Code
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		if ascending {
			return less(workflows[i], workflows[j])
		}

		return less(workflows[j], workflows[i])
	})

	total := len(workflows)
	selected := page(workflows, opts.Offset, opts.Limit)

	if !opts.IncludeNodes {
		for _, workflow := range selected {
			workflow.Nodes = nil
		}
	}

	return &persistence.ListWorkflowsResult{
		Workflows:   selected,
		TotalCount:  int64(total),
		HasNextPage: opts.Offset+len(selected) < total,
	}, nil
}

// Save persists a workflow with its nodes.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	return wr.store.atomically(func(s store) error {
		if workflow.DeletedAt == nil {
			existing, err := findLiveByCode(s, workflow.Code)
			if err != nil {
				return err
			}

			if existing != nil && existing.ID != workflow.ID {
				return persistence.NewWorkflowCodeError("Save", workflow.Code, persistence.ErrWorkflowCodeExists)
			}
		}

		now := time.Now().UTC()

		if workflow.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate workflow ID: %w", err)
			}

			workflow.ID = id.String()
		}

		if workflow.CreatedAt.IsZero() {
			workflow.CreatedAt = now
		}

		if workflow.Version == 0 {
			workflow.Version = 1
		}

		workflow.UpdatedAt = now

		for _, node := range workflow.Nodes {
			if node.ID == "" {
				id, err := uuid.NewV7()
				if err != nil {
					return fmt.Errorf("failed to generate node ID: %w", err)
				}

				node.ID = id.String()
			}

			if node.CreatedAt.IsZero() {
				node.CreatedAt = now
			}

			node.UpdatedAt = now
			node.WorkflowID = workflow.ID
		}

		return s.write(workflowsDir, workflow.ID, workflow)
	})
}

// Delete soft deletes a workflow.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	return wr.store.atomically(func(s store) error {
		var workflow models.Workflow

		found, err := s.read(workflowsDir, id, &workflow)
		if err != nil {
			return err
		}

		if !found || workflow.DeletedAt != nil {
			return nil
		}

		now := time.Now().UTC()
		workflow.DeletedAt = &now

		return s.write(workflowsDir, id, &workflow)
	})
}

package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const workflowSelect = `
		SELECT
			id
		  , code
		  , name
		  , description
		  , status
		  , version
		  , created_by
		  , created_at
		  , updated_at
		  , deleted_at
		FROM workflows
`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     querier
	tx     *sql.Tx
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetByID returns a workflow with its nodes, or nil when it does not exist.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	return r.getOne(ctx, workflowSelect+`WHERE id = $1 AND deleted_at IS NULL`, id)
}

// GetByCode returns the live workflow using code, or nil.
func (r *WorkflowRepository) GetByCode(ctx context.Context, code string) (*models.Workflow, error) {
	return r.getOne(ctx, workflowSelect+`WHERE code = $1 AND deleted_at IS NULL`, code)
}

func (r *WorkflowRepository) getOne(ctx context.Context, query string, arg string) (*models.Workflow, error) {
	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadNodes(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow nodes: %w", err)
	}

	return workflow, nil
}

// ListWorkflows returns one page of live workflows.
func (r *WorkflowRepository) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.ListWorkflowsResult, error) {
	query, countQuery, args, err := r.buildListQuery(opts)
	if err != nil {
		return nil, err
	}

	var total int64

	err = r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	if opts.IncludeNodes {
		for _, workflow := range workflows {
			err := r.loadNodes(ctx, workflow)
			if err != nil {
				return nil, fmt.Errorf("failed to load workflow nodes: %w", err)
			}
		}
	}

	return &persistence.ListWorkflowsResult{
		Workflows:   workflows,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(workflows)) < total,
	}, nil
}

func (r *WorkflowRepository) buildListQuery(opts persistence.ListWorkflowsOptions) (string, string, []any, error) {
	if !slices.Contains(persistence.WorkflowSortFields, opts.SortBy) {
		return "", "", nil, persistence.ErrInvalidSortField
	}

	direction := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		direction = "ASC"
	}

	where := "WHERE deleted_at IS NULL"
	args := make([]any, 0, 3)

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where += " AND status = $" + strconv.Itoa(len(args))
	}

	countQuery := "SELECT COUNT(*) FROM workflows " + where
	query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		workflowSelect, where, opts.SortBy, direction, len(args)+1, len(args)+2)

	return query, countQuery, args, nil
}

// Save upserts a workflow and replaces its nodes.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	if workflow.Version == 0 {
		workflow.Version = 1
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		workflowQuery := `
			INSERT INTO workflows (id, code, name, description, status, version, created_by, created_at, updated_at, deleted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				code = EXCLUDED.code,
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				status = EXCLUDED.status,
				version = EXCLUDED.version,
				updated_at = EXCLUDED.updated_at,
				deleted_at = EXCLUDED.deleted_at
		`

		_, err := tx.ExecContext(ctx, workflowQuery,
			workflow.ID,
			workflow.Code,
			workflow.Name,
			workflow.Description,
			workflow.Status,
			workflow.Version,
			workflow.CreatedBy,
			workflow.CreatedAt,
			workflow.UpdatedAt,
			workflow.DeletedAt,
		)
		if err != nil {
			if isUniqueViolation(err, "idx_workflows_code_live") {
				return persistence.NewWorkflowCodeError("Save", workflow.Code, persistence.ErrWorkflowCodeExists)
			}

			return fmt.Errorf("failed to save workflow base: %w", err)
		}

		_, err = tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", workflow.ID)
		if err != nil {
			return fmt.Errorf("failed to delete existing nodes: %w", err)
		}

		return r.saveNodes(ctx, tx, workflow, now)
	})
}

// withTx reuses the surrounding transaction or opens a dedicated one.
func (r *WorkflowRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	if r.tx != nil {
		return fn(r.tx)
	}

	database, ok := r.db.(*sql.DB)
	if !ok {
		return errors.New("workflow repository has no database handle")
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = fn(tx)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) loadNodes(ctx context.Context, workflow *models.Workflow) error {
	query := `
		SELECT
			id
		  , workflow_id
		  , node_type
		  , name
		  , sort_order
		  , approver_ids
		  , created_at
		  , updated_at
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY sort_order, position
	`

	rows, err := r.db.QueryContext(ctx, query, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow nodes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	nodes := make([]*models.WorkflowNode, 0)

	for rows.Next() {
		var (
			node      models.WorkflowNode
			approvers []string
		)

		err := rows.Scan(
			&node.ID,
			&node.WorkflowID,
			&node.NodeType,
			&node.Name,
			&node.SortOrder,
			pq.Array(&approvers),
			&node.CreatedAt,
			&node.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		if len(approvers) > 0 {
			node.ApproverIDs = approvers
		}

		nodes = append(nodes, &node)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	workflow.Nodes = nodes

	return nil
}

func (r *WorkflowRepository) saveNodes(ctx context.Context, tx *sql.Tx, workflow *models.Workflow, now time.Time) error {
	query := `
		INSERT INTO workflow_nodes (id, workflow_id, node_type, name, sort_order, position, approver_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for position, node := range workflow.Nodes {
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

		approvers := node.ApproverIDs
		if approvers == nil {
			approvers = []string{}
		}

		_, err := tx.ExecContext(ctx, query,
			node.ID,
			workflow.ID,
			node.NodeType,
			node.Name,
			node.SortOrder,
			position,
			pq.Array(approvers),
			node.CreatedAt,
			node.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	return nil
}

func scanWorkflow(scanner interface {
	Scan(dest ...any) error
}) (*models.Workflow, error) {
	var workflow models.Workflow

	err := scanner.Scan(
		&workflow.ID,
		&workflow.Code,
		&workflow.Name,
		&workflow.Description,
		&workflow.Status,
		&workflow.Version,
		&workflow.CreatedBy,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/google/uuid"
)

const taskSelect = `
		SELECT
			id
		  , instance_id
		  , node_id
		  , task_name
		  , task_type
		  , assignee_id
		  , assignee_name
		  , status
		  , action
		  , comment
		  , processed_at
		  , created_at
		  , updated_at
		  , deleted_at
		FROM workflow_tasks
`

// TaskRepository handles approval task database operations.
type TaskRepository struct {
	db     querier
	logger *slog.Logger
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *sql.DB, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

// CreateBatch inserts the tasks in order.
func (r *TaskRepository) CreateBatch(ctx context.Context, tasks []*models.WorkflowTask) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO workflow_tasks (
			id, instance_id, node_id, task_name, task_type, assignee_id, assignee_name, status,
			action, comment, processed_at, created_at, updated_at, deleted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	for _, task := range tasks {
		if task.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate task ID: %w", err)
			}

			task.ID = id.String()
		}

		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}

		task.UpdatedAt = now

		_, err := r.db.ExecContext(ctx, query,
			task.ID,
			task.InstanceID,
			task.NodeID,
			task.TaskName,
			task.TaskType,
			task.AssigneeID,
			task.AssigneeName,
			task.Status,
			task.Action,
			task.Comment,
			task.ProcessedAt,
			task.CreatedAt,
			task.UpdatedAt,
			task.DeletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
	}

	return nil
}

// Update persists a task decision.
func (r *TaskRepository) Update(ctx context.Context, task *models.WorkflowTask) error {
	task.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE workflow_tasks SET
			status = $2
		  , action = $3
		  , comment = $4
		  , processed_at = $5
		  , updated_at = $6
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.Status,
		task.Action,
		task.Comment,
		task.ProcessedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return &persistence.TaskError{Op: "Update", InstanceID: task.InstanceID, TaskID: task.ID, Err: persistence.ErrTaskNotFound}
	}

	return nil
}

// GetByID returns a task, or nil when it does not exist.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTask, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx, taskSelect+`WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	return task, nil
}

// ListByInstance returns every task of an instance in creation order.
func (r *TaskRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowTask, error) {
	return r.list(ctx, taskSelect+`
		WHERE instance_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id
	`, instanceID)
}

// ListByInstanceAndNode returns the tasks dispatched for one node of an instance.
func (r *TaskRepository) ListByInstanceAndNode(ctx context.Context, instanceID, nodeID string) ([]*models.WorkflowTask, error) {
	return r.list(ctx, taskSelect+`
		WHERE instance_id = $1 AND node_id = $2 AND deleted_at IS NULL
		ORDER BY created_at, id
	`, instanceID, nodeID)
}

// ListByAssignee returns one page of an assignee's open or decided tasks.
func (r *TaskRepository) ListByAssignee(ctx context.Context, opts persistence.ListTasksOptions) (*persistence.ListTasksResult, error) {
	where := `WHERE assignee_id = $1 AND deleted_at IS NULL AND status IN ('APPROVED', 'REJECTED')`
	order := `ORDER BY processed_at DESC, id DESC`

	if opts.Open {
		where = `WHERE assignee_id = $1 AND deleted_at IS NULL AND status IN ('PENDING', 'IN_PROGRESS')`
		order = `ORDER BY created_at DESC, id DESC`
	}

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_tasks "+where, opts.AssigneeID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	tasks, err := r.list(ctx, taskSelect+where+" "+order+" LIMIT $2 OFFSET $3", opts.AssigneeID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}

	return &persistence.ListTasksResult{
		Tasks:       tasks,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(tasks)) < total,
	}, nil
}

// CancelOpenByInstance cancels every open task of the instance.
func (r *TaskRepository) CancelOpenByInstance(ctx context.Context, instanceID string) (int, error) {
	query := `
		UPDATE workflow_tasks SET
			status = 'CANCELLED'
		  , updated_at = $2
		WHERE instance_id = $1 AND status IN ('PENDING', 'IN_PROGRESS') AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, instanceID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cancel tasks: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(affected), nil
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...any) ([]*models.WorkflowTask, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	tasks := make([]*models.WorkflowTask, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		tasks = append(tasks, task)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowTask, error) {
	var task models.WorkflowTask

	err := scanner.Scan(
		&task.ID,
		&task.InstanceID,
		&task.NodeID,
		&task.TaskName,
		&task.TaskType,
		&task.AssigneeID,
		&task.AssigneeName,
		&task.Status,
		&task.Action,
		&task.Comment,
		&task.ProcessedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &task, nil
}

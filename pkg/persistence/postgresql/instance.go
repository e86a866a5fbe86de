package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const instanceSelect = `
		SELECT
			id
		  , workflow_id
		  , business_type
		  , business_id
		  , business_title
		  , status
		  , initiator_id
		  , initiated_at
		  , current_node_id
		  , completed_at
		  , completion_note
		  , approval_mode
		  , approver_overrides
		  , comment
		  , created_at
		  , updated_at
		  , deleted_at
		FROM workflow_instances
`

// InstanceRepository handles workflow instance database operations.
type InstanceRepository struct {
	db     querier
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

// Create inserts a new instance. A second RUNNING instance for the same
// business key fails with persistence.ErrRunningInstanceExists.
func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	now := time.Now().UTC()

	if instance.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate instance ID: %w", err)
		}

		instance.ID = id.String()
	}

	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	if instance.InitiatedAt.IsZero() {
		instance.InitiatedAt = now
	}

	instance.UpdatedAt = now

	query := `
		INSERT INTO workflow_instances (
			id, workflow_id, business_type, business_id, business_title, status, initiator_id, initiated_at,
			current_node_id, completed_at, completion_note, approval_mode, approver_overrides, comment,
			created_at, updated_at, deleted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.ExecContext(ctx, query,
		instance.ID,
		instance.WorkflowID,
		instance.BusinessType,
		instance.BusinessID,
		instance.BusinessTitle,
		instance.Status,
		instance.InitiatorID,
		instance.InitiatedAt,
		instance.CurrentNodeID,
		instance.CompletedAt,
		instance.CompletionNote,
		instance.ApprovalMode,
		pq.Array(nonNil(instance.ApproverOverrides)),
		instance.Comment,
		instance.CreatedAt,
		instance.UpdatedAt,
		instance.DeletedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "idx_workflow_instances_running") {
			return &persistence.InstanceError{
				Op:           "Create",
				BusinessType: instance.BusinessType,
				BusinessID:   instance.BusinessID,
				Err:          persistence.ErrRunningInstanceExists,
			}
		}

		return fmt.Errorf("failed to insert instance: %w", err)
	}

	return nil
}

// Update persists the mutable state of an instance.
func (r *InstanceRepository) Update(ctx context.Context, instance *models.WorkflowInstance) error {
	instance.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE workflow_instances SET
			status = $2
		  , current_node_id = $3
		  , completed_at = $4
		  , completion_note = $5
		  , updated_at = $6
		  , deleted_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		instance.ID,
		instance.Status,
		instance.CurrentNodeID,
		instance.CompletedAt,
		instance.CompletionNote,
		instance.UpdatedAt,
		instance.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return &persistence.InstanceError{Op: "Update", InstanceID: instance.ID, Err: persistence.ErrInstanceNotFound}
	}

	return nil
}

// GetByID returns an instance, or nil when it does not exist.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := scanInstance(r.db.QueryRowContext(ctx, instanceSelect+`WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	return instance, nil
}

// FindRunning returns the RUNNING instance of a business key, or nil.
func (r *InstanceRepository) FindRunning(ctx context.Context, businessType, businessID string) (*models.WorkflowInstance, error) {
	query := instanceSelect + `
		WHERE business_type = $1 AND business_id = $2 AND status = 'RUNNING' AND deleted_at IS NULL
	`

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, businessType, businessID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	return instance, nil
}

// ListInstances returns one page of instances, newest first.
func (r *InstanceRepository) ListInstances(ctx context.Context, opts persistence.ListInstancesOptions) (*persistence.ListInstancesResult, error) {
	where := "WHERE deleted_at IS NULL"
	args := make([]any, 0, 7)

	addFilter := func(column string, value any) {
		args = append(args, value)
		where += " AND " + column + " = $" + strconv.Itoa(len(args))
	}

	if opts.WorkflowID != "" {
		addFilter("workflow_id", opts.WorkflowID)
	}

	if opts.BusinessType != "" {
		addFilter("business_type", opts.BusinessType)
	}

	if opts.BusinessID != "" {
		addFilter("business_id", opts.BusinessID)
	}

	if opts.InitiatorID != "" {
		addFilter("initiator_id", opts.InitiatorID)
	}

	if opts.Status != nil {
		addFilter("status", string(*opts.Status))
	}

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_instances "+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count instances: %w", err)
	}

	query := fmt.Sprintf("%s%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		instanceSelect, where, len(args)+1, len(args)+2)

	rows, err := r.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return &persistence.ListInstancesResult{
		Instances:   instances,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(instances)) < total,
	}, nil
}

func scanInstance(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowInstance, error) {
	var (
		instance  models.WorkflowInstance
		overrides []string
	)

	err := scanner.Scan(
		&instance.ID,
		&instance.WorkflowID,
		&instance.BusinessType,
		&instance.BusinessID,
		&instance.BusinessTitle,
		&instance.Status,
		&instance.InitiatorID,
		&instance.InitiatedAt,
		&instance.CurrentNodeID,
		&instance.CompletedAt,
		&instance.CompletionNote,
		&instance.ApprovalMode,
		pq.Array(&overrides),
		&instance.Comment,
		&instance.CreatedAt,
		&instance.UpdatedAt,
		&instance.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(overrides) > 0 {
		instance.ApproverOverrides = overrides
	}

	return &instance, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}

	return values
}

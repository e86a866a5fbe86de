package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/google/uuid"
)

// HistoryRepository stores the approval audit trail.
type HistoryRepository struct {
	db     querier
	logger *slog.Logger
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *sql.DB, logger *slog.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

// Append inserts one audit record.
func (r *HistoryRepository) Append(ctx context.Context, record *models.ApprovalRecord) error {
	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate history ID: %w", err)
		}

		record.ID = id.String()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO approval_history (
			id, instance_id, task_id, node_id, node_name, approver_id, approver_name, action, comment, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.InstanceID,
		record.TaskID,
		record.NodeID,
		record.NodeName,
		record.ApproverID,
		record.ApproverName,
		record.Action,
		record.Comment,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval record: %w", err)
	}

	return nil
}

// ListByInstance returns the audit trail of an instance, oldest first.
func (r *HistoryRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.ApprovalRecord, error) {
	query := `
		SELECT
			id
		  , instance_id
		  , task_id
		  , node_id
		  , node_name
		  , approver_id
		  , approver_name
		  , action
		  , comment
		  , created_at
		FROM approval_history
		WHERE instance_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval history: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.ApprovalRecord, 0)

	for rows.Next() {
		var record models.ApprovalRecord

		err := rows.Scan(
			&record.ID,
			&record.InstanceID,
			&record.TaskID,
			&record.NodeID,
			&record.NodeName,
			&record.ApproverID,
			&record.ApproverName,
			&record.Action,
			&record.Comment,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval record: %w", err)
		}

		records = append(records, &record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating approval history: %w", err)
	}

	return records, nil
}

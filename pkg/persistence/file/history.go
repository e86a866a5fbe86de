package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/google/uuid"
)

// HistoryRepository stores the approval audit trail as files.
type HistoryRepository struct {
	store store
}

// Append stores one audit record.
func (hr *HistoryRepository) Append(_ context.Context, record *models.ApprovalRecord) error {
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

	return hr.store.write(historyDir, record.ID, record)
}

// ListByInstance returns an instance's audit trail, oldest first.
func (hr *HistoryRepository) ListByInstance(_ context.Context, instanceID string) ([]*models.ApprovalRecord, error) {
	records, err := decodeAll(hr.store, historyDir, func(r *models.ApprovalRecord) bool {
		return r.InstanceID == instanceID
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load approval history: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}

		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

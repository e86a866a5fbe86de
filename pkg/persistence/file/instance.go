package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/google/uuid"
)

// InstanceRepository handles workflow instance file operations.
type InstanceRepository struct {
	store store
}

// Create stores a new instance, refusing a second RUNNING instance per business key.
func (ir *InstanceRepository) Create(_ context.Context, instance *models.WorkflowInstance) error {
	return ir.store.atomically(func(s store) error {
		if instance.Status == models.InstanceStatusRunning {
			running, err := findRunning(s, instance.BusinessType, instance.BusinessID)
			if err != nil {
				return err
			}

			if running != nil {
				return &persistence.InstanceError{
					Op:           "Create",
					BusinessType: instance.BusinessType,
					BusinessID:   instance.BusinessID,
					Err:          persistence.ErrRunningInstanceExists,
				}
			}
		}

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

		return s.write(instancesDir, instance.ID, instance)
	})
}

// Update overwrites a stored instance.
func (ir *InstanceRepository) Update(_ context.Context, instance *models.WorkflowInstance) error {
	return ir.store.atomically(func(s store) error {
		var existing models.WorkflowInstance

		found, err := s.read(instancesDir, instance.ID, &existing)
		if err != nil {
			return err
		}

		if !found {
			return &persistence.InstanceError{Op: "Update", InstanceID: instance.ID, Err: persistence.ErrInstanceNotFound}
		}

		instance.UpdatedAt = time.Now().UTC()

		return s.write(instancesDir, instance.ID, instance)
	})
}

// GetByID returns an instance or nil.
func (ir *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	found, err := ir.store.read(instancesDir, id, &instance)
	if err != nil {
		return nil, err
	}

	if !found || instance.DeletedAt != nil {
		return nil, nil
	}

	return &instance, nil
}

// FindRunning returns the RUNNING instance of a business key or nil.
func (ir *InstanceRepository) FindRunning(_ context.Context, businessType, businessID string) (*models.WorkflowInstance, error) {
	return findRunning(ir.store, businessType, businessID)
}

func findRunning(s store, businessType, businessID string) (*models.WorkflowInstance, error) {
	instances, err := decodeAll(s, instancesDir, func(i *models.WorkflowInstance) bool {
		return i.DeletedAt == nil &&
			i.Status == models.InstanceStatusRunning &&
			i.BusinessType == businessType &&
			i.BusinessID == businessID
	})
	if err != nil {
		return nil, err
	}

	if len(instances) == 0 {
		return nil, nil
	}

	return instances[0], nil
}

// ListInstances returns one page of instances, newest first.
func (ir *InstanceRepository) ListInstances(_ context.Context, opts persistence.ListInstancesOptions) (*persistence.ListInstancesResult, error) {
	instances, err := decodeAll(ir.store, instancesDir, func(i *models.WorkflowInstance) bool {
		return i.DeletedAt == nil &&
			(opts.WorkflowID == "" || i.WorkflowID == opts.WorkflowID) &&
			(opts.BusinessType == "" || i.BusinessType == opts.BusinessType) &&
			(opts.BusinessID == "" || i.BusinessID == opts.BusinessID) &&
			(opts.InitiatorID == "" || i.InitiatorID == opts.InitiatorID) &&
			(opts.Status == nil || i.Status == *opts.Status)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load instances: %w", err)
	}

	sort.SliceStable(instances, func(i, j int) bool {
		if instances[i].CreatedAt.Equal(instances[j].CreatedAt) {
			return instances[i].ID > instances[j].ID
		}

		return instances[i].CreatedAt.After(instances[j].CreatedAt)
	})

	selected := page(instances, opts.Offset, opts.Limit)

	return &persistence.ListInstancesResult{
		Instances:   selected,
		TotalCount:  int64(len(instances)),
		HasNextPage: opts.Offset+len(selected) < len(instances),
	}, nil
}

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

// TaskRepository handles approval task file operations.
type TaskRepository struct {
	store store
}

// CreateBatch stores new tasks.
func (tr *TaskRepository) CreateBatch(_ context.Context, tasks []*models.WorkflowTask) error {
	return tr.store.atomically(func(s store) error {
		now := time.Now().UTC()

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

			err := s.write(tasksDir, task.ID, task)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// Update overwrites a stored task.
func (tr *TaskRepository) Update(_ context.Context, task *models.WorkflowTask) error {
	return tr.store.atomically(func(s store) error {
		var existing models.WorkflowTask

		found, err := s.read(tasksDir, task.ID, &existing)
		if err != nil {
			return err
		}

		if !found {
			return &persistence.TaskError{Op: "Update", InstanceID: task.InstanceID, TaskID: task.ID, Err: persistence.ErrTaskNotFound}
		}

		task.UpdatedAt = time.Now().UTC()

		return s.write(tasksDir, task.ID, task)
	})
}

// GetByID returns a task or nil.
func (tr *TaskRepository) GetByID(_ context.Context, id string) (*models.WorkflowTask, error) {
	var task models.WorkflowTask

	found, err := tr.store.read(tasksDir, id, &task)
	if err != nil {
		return nil, err
	}

	if !found || task.DeletedAt != nil {
		return nil, nil
	}

	return &task, nil
}

// ListByInstance returns the tasks of an instance in creation order.
func (tr *TaskRepository) ListByInstance(_ context.Context, instanceID string) ([]*models.WorkflowTask, error) {
	return listTasks(tr.store, func(t *models.WorkflowTask) bool {
		return t.InstanceID == instanceID
	})
}

// ListByInstanceAndNode returns the tasks of one node of an instance.
func (tr *TaskRepository) ListByInstanceAndNode(_ context.Context, instanceID, nodeID string) ([]*models.WorkflowTask, error) {
	return listTasks(tr.store, func(t *models.WorkflowTask) bool {
		return t.InstanceID == instanceID && t.NodeID == nodeID
	})
}

func listTasks(s store, keep func(*models.WorkflowTask) bool) ([]*models.WorkflowTask, error) {
	tasks, err := decodeAll(s, tasksDir, func(t *models.WorkflowTask) bool {
		return t.DeletedAt == nil && keep(t)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}

		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}

// ListByAssignee returns one page of an assignee's open or decided tasks.
func (tr *TaskRepository) ListByAssignee(_ context.Context, opts persistence.ListTasksOptions) (*persistence.ListTasksResult, error) {
	tasks, err := listTasks(tr.store, func(t *models.WorkflowTask) bool {
		if t.AssigneeID != opts.AssigneeID {
			return false
		}

		if opts.Open {
			return t.Status.IsOpen()
		}

		return t.Status == models.TaskStatusApproved || t.Status == models.TaskStatusRejected
	})
	if err != nil {
		return nil, err
	}

	timestamp := func(t *models.WorkflowTask) time.Time {
		if !opts.Open && t.ProcessedAt != nil {
			return *t.ProcessedAt
		}

		return t.CreatedAt
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := timestamp(tasks[i]), timestamp(tasks[j])
		if a.Equal(b) {
			return tasks[i].ID > tasks[j].ID
		}

		return a.After(b)
	})

	selected := page(tasks, opts.Offset, opts.Limit)

	return &persistence.ListTasksResult{
		Tasks:       selected,
		TotalCount:  int64(len(tasks)),
		HasNextPage: opts.Offset+len(selected) < len(tasks),
	}, nil
}

// CancelOpenByInstance cancels every open task of the instance.
func (tr *TaskRepository) CancelOpenByInstance(_ context.Context, instanceID string) (int, error) {
	cancelled := 0

	err := tr.store.atomically(func(s store) error {
		tasks, err := listTasks(s, func(t *models.WorkflowTask) bool {
			return t.InstanceID == instanceID && t.Status.IsOpen()
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		for _, task := range tasks {
			task.Status = models.TaskStatusCancelled
			task.UpdatedAt = now

			err := s.write(tasksDir, task.ID, task)
			if err != nil {
				return err
			}

			cancelled++
		}

		return nil
	})

	return cancelled, err
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/persistence"
)

// Dispatcher creates the approval tasks of a node.
type Dispatcher struct {
	users  UserDirectory
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. users may be nil, in which case tasks
// carry no assignee name.
func NewDispatcher(users UserDirectory, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		users:  users,
		logger: logger.With("module", "dispatcher"),
	}
}

// Dispatch creates one PENDING task per approver of node within tx, stamped
// with now. The instance's approver overrides, when present, replace the
// node's approvers.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	tx persistence.Tx,
	instance *models.WorkflowInstance,
	node *models.WorkflowNode,
	now time.Time,
) ([]*models.WorkflowTask, error) {
	approvers := approversFor(instance, node)
	if len(approvers) == 0 {
		return nil, &ServiceError{
			Op:      "Dispatch",
			Code:    "NO_APPROVERS",
			Message: fmt.Sprintf("node '%s' of instance %s has no approvers", node.Name, instance.ID),
			Err:     ErrNoApprovers,
		}
	}

	tasks := make([]*models.WorkflowTask, 0, len(approvers))

	for _, approverID := range approvers {
		tasks = append(tasks, &models.WorkflowTask{
			InstanceID:   instance.ID,
			NodeID:       node.ID,
			TaskName:     node.Name,
			TaskType:     models.TaskTypeApproval,
			AssigneeID:   approverID,
			AssigneeName: d.resolveName(ctx, approverID),
			Status:       models.TaskStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	err := tx.Tasks().CreateBatch(ctx, tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks for node %s: %w", node.ID, err)
	}

	d.logger.DebugContext(ctx, "Dispatched approval tasks",
		"instance_id", instance.ID,
		"node_id", node.ID,
		"count", len(tasks))

	return tasks, nil
}

func (d *Dispatcher) resolveName(ctx context.Context, userID string) string {
	if d.users == nil {
		return ""
	}

	name, err := d.users.ResolveUserName(ctx, userID)
	if err != nil {
		d.logger.WarnContext(ctx, "Failed to resolve approver name", "user_id", userID, "error", err)

		return ""
	}

	return name
}

// approversFor returns the distinct approvers of a node in declared order.
func approversFor(instance *models.WorkflowInstance, node *models.WorkflowNode) []string {
	source := node.ApproverIDs
	if len(instance.ApproverOverrides) > 0 {
		source = instance.ApproverOverrides
	}

	seen := make(map[string]struct{}, len(source))
	approvers := make([]string, 0, len(source))

	for _, id := range source {
		if id == "" {
			continue
		}

		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}
		approvers = append(approvers, id)
	}

	return approvers
}

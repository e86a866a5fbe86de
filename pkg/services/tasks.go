package services

import (
	"context"
	"fmt"

	"github.com/cmsflow/approvals/pkg/events"
	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/otelhelper"
	"github.com/cmsflow/approvals/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// ClaimTask marks a PENDING task IN_PROGRESS for its assignee. Claiming a
// task already in progress is a no-op.
func (e *Engine) ClaimTask(ctx context.Context, taskID, userID string) (*models.WorkflowTask, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.ClaimTask",
		attribute.String(otelhelper.TaskIDKey, taskID),
		attribute.String(otelhelper.UserIDKey, userID),
	)
	defer span.End()

	var task *models.WorkflowTask

	err := e.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var (
			instance *models.WorkflowInstance
			txErr    error
		)

		task, instance, txErr = e.lockTask(ctx, tx, "ClaimTask", taskID)
		if txErr != nil {
			return txErr
		}

		txErr = checkDecidable("ClaimTask", task, instance, userID)
		if txErr != nil {
			return txErr
		}

		if task.Status == models.TaskStatusInProgress {
			return nil
		}

		task.Status = models.TaskStatusInProgress
		task.UpdatedAt = e.now()

		return tx.Tasks().Update(ctx, task)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return task, nil
}

// ApproveTask records an approval. When every task of the current node is
// approved the instance advances to its next node.
func (e *Engine) ApproveTask(ctx context.Context, taskID, approverID, comment string) (*models.WorkflowTask, error) {
	return e.decide(ctx, taskID, approverID, comment, models.TaskActionApprove)
}

// RejectTask records a rejection, which rejects the whole instance.
func (e *Engine) RejectTask(ctx context.Context, taskID, approverID, comment string) (*models.WorkflowTask, error) {
	return e.decide(ctx, taskID, approverID, comment, models.TaskActionReject)
}

func (e *Engine) decide(
	ctx context.Context,
	taskID, approverID, comment string,
	action models.TaskAction,
) (*models.WorkflowTask, error) {
	op := "ApproveTask"
	if action == models.TaskActionReject {
		op = "RejectTask"
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine."+op,
		attribute.String(otelhelper.TaskIDKey, taskID),
		attribute.String(otelhelper.UserIDKey, approverID),
	)
	defer span.End()

	var (
		task *models.WorkflowTask
		fx   effects
	)

	err := e.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var (
			instance *models.WorkflowInstance
			txErr    error
		)

		task, instance, txErr = e.lockTask(ctx, tx, op, taskID)
		if txErr != nil {
			return txErr
		}

		txErr = checkDecidable(op, task, instance, approverID)
		if txErr != nil {
			return txErr
		}

		return e.applyDecision(ctx, tx, instance, task, action, comment, &fx)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, task.InstanceID))
	e.metrics.TaskDecided(string(action))
	e.logger.InfoContext(ctx, "Task decided",
		"task_id", task.ID,
		"instance_id", task.InstanceID,
		"approver_id", approverID,
		"action", action)

	e.afterCommit(ctx, &fx)

	return task, nil
}

// lockTask locks the instance owning a task and reloads the task under that
// lock.
func (e *Engine) lockTask(
	ctx context.Context,
	tx persistence.Tx,
	op, taskID string,
) (*models.WorkflowTask, *models.WorkflowInstance, error) {
	task, err := tx.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load task: %w", err)
	}

	if task == nil {
		return nil, nil, &persistence.TaskError{Op: op, TaskID: taskID, Err: ErrTaskNotFound}
	}

	instance, err := tx.LockInstance(ctx, task.InstanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock instance: %w", err)
	}

	if instance == nil {
		return nil, nil, &persistence.InstanceError{Op: op, InstanceID: task.InstanceID, Err: ErrInstanceNotFound}
	}

	task, err = tx.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reload task: %w", err)
	}

	if task == nil {
		return nil, nil, &persistence.TaskError{Op: op, InstanceID: instance.ID, TaskID: taskID, Err: ErrTaskNotFound}
	}

	return task, instance, nil
}

func checkDecidable(op string, task *models.WorkflowTask, instance *models.WorkflowInstance, userID string) error {
	if !task.Status.IsOpen() {
		return &ServiceError{
			Op:      op,
			Code:    "TASK_ALREADY_PROCESSED",
			Message: fmt.Sprintf("task %s is %s", task.ID, task.Status),
			Err:     ErrTaskAlreadyProcessed,
		}
	}

	if !instance.IsRunning() {
		return instanceNotRunning(op, instance)
	}

	if task.AssigneeID != userID {
		return &ServiceError{
			Op:      op,
			Code:    "NOT_TASK_ASSIGNEE",
			Message: fmt.Sprintf("task %s is not assigned to user %s", task.ID, userID),
			Err:     ErrNotTaskAssignee,
		}
	}

	return nil
}

func (e *Engine) applyDecision(
	ctx context.Context,
	tx persistence.Tx,
	instance *models.WorkflowInstance,
	task *models.WorkflowTask,
	action models.TaskAction,
	comment string,
	fx *effects,
) error {
	workflow, err := tx.Workflows().GetByID(ctx, instance.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}

	if workflow == nil {
		return persistence.NewWorkflowError("decide", instance.WorkflowID, ErrWorkflowNotFound)
	}

	now := e.now()
	task.Decide(action, comment, now)

	err = tx.Tasks().Update(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}

	nodeName := task.TaskName
	if node, ok := workflow.NodeByID(task.NodeID); ok {
		nodeName = node.Name
	}

	err = tx.History().Append(ctx, &models.ApprovalRecord{
		InstanceID:   instance.ID,
		TaskID:       task.ID,
		NodeID:       task.NodeID,
		NodeName:     nodeName,
		ApproverID:   task.AssigneeID,
		ApproverName: task.AssigneeName,
		Action:       action,
		Comment:      comment,
		CreatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("failed to append approval history: %w", err)
	}

	if action == models.TaskActionReject {
		fx.emit(events.TaskRejected{
			BaseEvent:  baseEvent(events.TaskRejectedEvent, instance),
			TaskID:     task.ID,
			NodeID:     task.NodeID,
			ApproverID: task.AssigneeID,
			Comment:    comment,
		})

		return e.complete(ctx, tx, instance, models.InstanceStatusRejected, comment, task.AssigneeID, fx)
	}

	fx.emit(events.TaskApproved{
		BaseEvent:  baseEvent(events.TaskApprovedEvent, instance),
		TaskID:     task.ID,
		NodeID:     task.NodeID,
		ApproverID: task.AssigneeID,
		Comment:    comment,
	})

	if task.NodeID != instance.CurrentNodeID {
		return nil
	}

	done, err := nodeApproved(ctx, tx, instance.ID, task.NodeID)
	if err != nil {
		return err
	}

	if !done {
		return nil
	}

	return e.advance(ctx, tx, workflow, instance, fx)
}

// nodeApproved reports whether every task dispatched for a node is APPROVED.
func nodeApproved(ctx context.Context, tx persistence.Tx, instanceID, nodeID string) (bool, error) {
	tasks, err := tx.Tasks().ListByInstanceAndNode(ctx, instanceID, nodeID)
	if err != nil {
		return false, fmt.Errorf("failed to load node tasks: %w", err)
	}

	if len(tasks) == 0 {
		return false, nil
	}

	for _, task := range tasks {
		if task.Status != models.TaskStatusApproved {
			return false, nil
		}
	}

	return true, nil
}

// TaskView is a task together with the business object it decides on.
type TaskView struct {
	Task           *models.WorkflowTask  `json:"task"`
	WorkflowID     string                `json:"workflow_id"`
	BusinessType   string                `json:"business_type"`
	BusinessID     string                `json:"business_id"`
	BusinessTitle  string                `json:"business_title,omitempty"`
	InstanceStatus models.InstanceStatus `json:"instance_status"`
}

// GetTask returns one task.
func (e *Engine) GetTask(ctx context.Context, taskID string) (*TaskView, error) {
	task, err := e.persistence.TaskRepository().GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	if task == nil {
		return nil, &persistence.TaskError{Op: "GetTask", TaskID: taskID, Err: ErrTaskNotFound}
	}

	return e.viewTask(ctx, task)
}

type ListTasksResponse struct {
	Tasks       []*TaskView `json:"tasks"`
	TotalCount  int64       `json:"total_count"`
	HasNextPage bool        `json:"has_next_page"`
}

// ListPendingTasks returns the open tasks assigned to a user, newest first.
func (e *Engine) ListPendingTasks(ctx context.Context, userID string, limit, offset int) (*ListTasksResponse, error) {
	return e.listAssigned(ctx, userID, true, limit, offset)
}

// ListCompletedTasks returns the tasks a user has decided, most recent first.
func (e *Engine) ListCompletedTasks(ctx context.Context, userID string, limit, offset int) (*ListTasksResponse, error) {
	return e.listAssigned(ctx, userID, false, limit, offset)
}

func (e *Engine) listAssigned(ctx context.Context, userID string, open bool, limit, offset int) (*ListTasksResponse, error) {
	limit, offset = normalizePage(limit, offset)

	result, err := e.persistence.TaskRepository().ListByAssignee(ctx, persistence.ListTasksOptions{
		Limit:      limit,
		Offset:     offset,
		AssigneeID: userID,
		Open:       open,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	views := make([]*TaskView, 0, len(result.Tasks))

	for _, task := range result.Tasks {
		view, err := e.viewTask(ctx, task)
		if err != nil {
			return nil, err
		}

		views = append(views, view)
	}

	return &ListTasksResponse{
		Tasks:       views,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// ListInstanceTasks returns every task of an instance in creation order.
func (e *Engine) ListInstanceTasks(ctx context.Context, instanceID string) ([]*models.WorkflowTask, error) {
	_, err := e.fetchInstance(ctx, "ListInstanceTasks", instanceID)
	if err != nil {
		return nil, err
	}

	tasks, err := e.persistence.TaskRepository().ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, nil
}

// History returns the approval audit trail of an instance, oldest first.
func (e *Engine) History(ctx context.Context, instanceID string) ([]*models.ApprovalRecord, error) {
	_, err := e.fetchInstance(ctx, "History", instanceID)
	if err != nil {
		return nil, err
	}

	records, err := e.persistence.HistoryRepository().ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	return records, nil
}

func (e *Engine) viewTask(ctx context.Context, task *models.WorkflowTask) (*TaskView, error) {
	view := &TaskView{Task: task}

	instance, err := e.persistence.InstanceRepository().GetByID(ctx, task.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}

	if instance != nil {
		view.WorkflowID = instance.WorkflowID
		view.BusinessType = instance.BusinessType
		view.BusinessID = instance.BusinessID
		view.BusinessTitle = instance.BusinessTitle
		view.InstanceStatus = instance.Status
	}

	return view, nil
}

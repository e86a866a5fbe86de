package models

import "time"

// TaskStatus is the lifecycle state of an approval task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusApproved   TaskStatus = "APPROVED"
	TaskStatusRejected   TaskStatus = "REJECTED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// IsOpen reports whether the task still awaits a decision.
func (s TaskStatus) IsOpen() bool {
	return s == TaskStatusPending || s == TaskStatusInProgress
}

// TaskTypeApproval is the only task type the engine creates.
const TaskTypeApproval = "APPROVAL"

// TaskAction records the decision taken on a task.
type TaskAction string

const (
	TaskActionApprove TaskAction = "APPROVE"
	TaskActionReject  TaskAction = "REJECT"
)

// WorkflowTask is a unit of work assigned to one approver at one node.
type WorkflowTask struct {
	ID           string     `json:"id"`
	InstanceID   string     `json:"instance_id"`
	NodeID       string     `json:"node_id"`
	TaskName     string     `json:"task_name"`
	TaskType     string     `json:"task_type"`
	AssigneeID   string     `json:"assignee_id"`
	AssigneeName string     `json:"assignee_name"`
	Status       TaskStatus `json:"status"`
	Action       TaskAction `json:"action,omitempty"`
	Comment      string     `json:"comment,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Decide records an approver's decision on the task.
func (t *WorkflowTask) Decide(action TaskAction, comment string, at time.Time) {
	switch action {
	case TaskActionApprove:
		t.Status = TaskStatusApproved
	case TaskActionReject:
		t.Status = TaskStatusRejected
	}

	t.Action = action
	t.Comment = comment
	t.ProcessedAt = &at
	t.UpdatedAt = at
}

package persistence

import "github.com/cmsflow/approvals/pkg/models"

// ListWorkflowsOptions contains options for listing workflow definitions.
type ListWorkflowsOptions struct {
	Limit  int
	Offset int

	Status *models.WorkflowStatus

	// SortBy is one of created_at, updated_at, name or code.
	SortBy    string
	SortOrder string

	IncludeNodes bool
}

// ListWorkflowsResult contains one page of workflow definitions.
type ListWorkflowsResult struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

// ListInstancesOptions contains filters for listing workflow instances,
// newest first.
type ListInstancesOptions struct {
	Limit  int
	Offset int

	WorkflowID   string
	BusinessType string
	BusinessID   string
	InitiatorID  string
	Status       *models.InstanceStatus
}

// ListInstancesResult contains one page of workflow instances.
type ListInstancesResult struct {
	Instances   []*models.WorkflowInstance
	TotalCount  int64
	HasNextPage bool
}

// ListTasksOptions selects one assignee's tasks. Open tasks are ordered by
// creation time, decided tasks by processing time, newest first in both.
type ListTasksOptions struct {
	Limit  int
	Offset int

	AssigneeID string
	// Open selects PENDING and IN_PROGRESS tasks; otherwise decided tasks.
	Open bool
}

// ListTasksResult contains one page of tasks.
type ListTasksResult struct {
	Tasks       []*models.WorkflowTask
	TotalCount  int64
	HasNextPage bool
}

// WorkflowSortFields lists the columns a workflow listing may sort by.
var WorkflowSortFields = []string{"created_at", "updated_at", "name", "code"}

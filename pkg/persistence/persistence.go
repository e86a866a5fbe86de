// Package persistence provides data storage abstraction layer for approval workflows.
package persistence

import (
	"context"

	"github.com/cmsflow/approvals/pkg/models"
)

// Persistence is the storage backend used by the engine.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	InstanceRepository() InstanceRepository
	TaskRepository() TaskRepository
	HistoryRepository() HistoryRepository

	// Transaction runs fn atomically. The transaction commits when fn returns
	// nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Tx exposes the repositories bound to a running transaction.
type Tx interface {
	Workflows() WorkflowRepository
	Instances() InstanceRepository
	Tasks() TaskRepository
	History() HistoryRepository

	// LockInstance loads an instance and holds its exclusive lock until the
	// transaction ends. Returns nil when the instance does not exist.
	LockInstance(ctx context.Context, id string) (*models.WorkflowInstance, error)
}

// WorkflowRepository stores workflow definitions and their nodes.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	GetByCode(ctx context.Context, code string) (*models.Workflow, error)
	ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*ListWorkflowsResult, error)
	// Save upserts the workflow and replaces its node list.
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// InstanceRepository stores workflow instances.
type InstanceRepository interface {
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	Update(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	FindRunning(ctx context.Context, businessType, businessID string) (*models.WorkflowInstance, error)
	ListInstances(ctx context.Context, opts ListInstancesOptions) (*ListInstancesResult, error)
}

// TaskRepository stores approval tasks.
type TaskRepository interface {
	CreateBatch(ctx context.Context, tasks []*models.WorkflowTask) error
	Update(ctx context.Context, task *models.WorkflowTask) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTask, error)
	ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowTask, error)
	ListByInstanceAndNode(ctx context.Context, instanceID, nodeID string) ([]*models.WorkflowTask, error)
	ListByAssignee(ctx context.Context, opts ListTasksOptions) (*ListTasksResult, error)
	// CancelOpenByInstance cancels every PENDING or IN_PROGRESS task of the
	// instance and returns how many were changed.
	CancelOpenByInstance(ctx context.Context, instanceID string) (int, error)
}

// HistoryRepository stores the approval audit trail.
type HistoryRepository interface {
	Append(ctx context.Context, record *models.ApprovalRecord) error
	ListByInstance(ctx context.Context, instanceID string) ([]*models.ApprovalRecord, error)
}

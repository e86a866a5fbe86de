// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowCodeExists indicates another non-deleted workflow already uses the code.
	ErrWorkflowCodeExists = errors.New("workflow code already exists")

	// ErrNodeNotFound indicates a node was not found by the given identifier.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrRunningInstanceExists indicates the business object already has a RUNNING instance.
	ErrRunningInstanceExists = errors.New("business object already has a running instance")

	// ErrTaskNotFound indicates a task was not found.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidSortField indicates a listing was asked to sort by an unknown column.
	ErrInvalidSortField = errors.New("invalid sort field")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string // Workflow ID if applicable
	Code       string // Workflow code if applicable
	Err        error  // Underlying error
	Message    string // Additional context message
}

func (e *WorkflowError) Error() string {
	target := e.WorkflowID
	if target == "" {
		target = "code " + e.Code
	}

	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for workflow %s: %s (%v)", e.Op, target, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, target, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// NewWorkflowCodeError creates a new workflow error for lookups by code.
func NewWorkflowCodeError(op, code string, err error) *WorkflowError {
	return &WorkflowError{
		Op:   op,
		Code: code,
		Err:  err,
	}
}

// InstanceError wraps instance-related errors with additional context.
type InstanceError struct {
	Op           string // Operation being performed
	InstanceID   string // Instance ID if known
	BusinessType string // Business type if applicable
	BusinessID   string // Business ID if applicable
	Err          error  // Underlying error
}

func (e *InstanceError) Error() string {
	if e.InstanceID == "" {
		return fmt.Sprintf("%s operation failed for %s/%s: %v", e.Op, e.BusinessType, e.BusinessID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// TaskError wraps task-related errors with additional context.
type TaskError struct {
	Op         string // Operation being performed
	InstanceID string // Owning instance ID
	TaskID     string // Task ID
	Err        error  // Underlying error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s operation failed for task %s in instance %s: %v", e.Op, e.TaskID, e.InstanceID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowCodeExists checks if an error indicates a workflow code collision.
func IsWorkflowCodeExists(err error) bool {
	return errors.Is(err, ErrWorkflowCodeExists)
}

// IsNodeNotFound checks if an error indicates a node was not found.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsRunningInstanceExists checks if an error indicates a duplicate RUNNING instance.
func IsRunningInstanceExists(err error) bool {
	return errors.Is(err, ErrRunningInstanceExists)
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsInvalidSortField checks if an error indicates an invalid sort field.
func IsInvalidSortField(err error) bool {
	return errors.Is(err, ErrInvalidSortField)
}

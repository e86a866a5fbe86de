// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/cmsflow/approvals/pkg/persistence"
)

// Validation Errors (400 Bad Request).
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidStatus    = errors.New("invalid workflow status")
	ErrInvalidNodeType  = errors.New("invalid node type")
	ErrWorkflowNil      = errors.New("workflow cannot be nil")
)

// NotFound Errors (404 Not Found).
var (
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	ErrNodeNotFound     = persistence.ErrNodeNotFound
	ErrInstanceNotFound = persistence.ErrInstanceNotFound
	ErrTaskNotFound     = persistence.ErrTaskNotFound
)

// InvalidState Errors (409 Conflict). The caller must correct and retry the whole operation.
var (
	ErrWorkflowNotActive      = errors.New("workflow is not active")
	ErrInstanceAlreadyRunning = persistence.ErrRunningInstanceExists
	ErrInstanceNotRunning     = errors.New("workflow instance is not running")
	ErrTaskAlreadyProcessed   = errors.New("task already processed")
	ErrNoApprovers            = errors.New("node has no approvers configured")
)

// PermissionDenied Errors (403 Forbidden).
var (
	ErrNotTaskAssignee = errors.New("task is not assigned to the caller")
)

// ConfigurationError Errors (422 Unprocessable Entity).
var (
	ErrNoStartNode    = errors.New("workflow has no start node")
	ErrNoApprovalNode = errors.New("workflow has no approval node")
)

// Business Logic Conflicts (409 Conflict).
var (
	ErrWorkflowCodeExists = persistence.ErrWorkflowCodeExists
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidNodeType) ||
		errors.Is(err, ErrWorkflowNil)
}

// IsNotFound checks if an error means an id did not resolve.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrTaskNotFound)
}

// IsInvalidState checks if an error is a state precondition failure.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrWorkflowNotActive) ||
		errors.Is(err, ErrInstanceAlreadyRunning) ||
		errors.Is(err, ErrInstanceNotRunning) ||
		errors.Is(err, ErrTaskAlreadyProcessed) ||
		errors.Is(err, ErrNoApprovers)
}

// IsPermissionDenied checks if an error means the caller may not act on the resource.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrNotTaskAssignee)
}

// IsConfigurationError checks if an error means the workflow definition cannot run.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNoStartNode) ||
		errors.Is(err, ErrNoApprovalNode)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowCodeExists)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

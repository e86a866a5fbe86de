package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("GetByID", "workflow-123", persistence.ErrWorkflowNotFound)
		codeErr := persistence.NewWorkflowCodeError("Save", "CONTENT_REVIEW", persistence.ErrWorkflowCodeExists)
		instanceErr := &persistence.InstanceError{Op: "Create", BusinessType: "CONTENT", BusinessID: "42", Err: persistence.ErrRunningInstanceExists}
		taskErr := &persistence.TaskError{Op: "GetByID", TaskID: "task-1", Err: persistence.ErrTaskNotFound}

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.True(t, persistence.IsWorkflowCodeExists(codeErr))
		assert.True(t, persistence.IsRunningInstanceExists(instanceErr))
		assert.True(t, persistence.IsTaskNotFound(taskErr))
		assert.False(t, persistence.IsInstanceNotFound(taskErr))

		assert.True(t, errors.Is(workflowErr, persistence.ErrWorkflowNotFound))
		assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", instanceErr), persistence.ErrRunningInstanceExists))
	})

	t.Run("workflow error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowError("Save", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.Contains(t, err.Error(), "Save")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")
	})

	t.Run("workflow code error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowCodeError("Save", "CONTENT_REVIEW", persistence.ErrWorkflowCodeExists)

		assert.Contains(t, err.Error(), "code CONTENT_REVIEW")
		assert.Contains(t, err.Error(), "workflow code already exists")
	})

	t.Run("instance error describes business key", func(t *testing.T) {
		err := &persistence.InstanceError{Op: "Create", BusinessType: "CONTENT", BusinessID: "42", Err: persistence.ErrRunningInstanceExists}

		assert.Contains(t, err.Error(), "CONTENT/42")
	})
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/cmsflow/approvals/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingUsers struct{}

func (failingUsers) ResolveUserName(context.Context, string) (string, error) {
	return "", errors.New("directory down")
}

func TestApproversFor(t *testing.T) {
	node := &models.WorkflowNode{ApproverIDs: []string{"u1", "", "u2", "u1"}}

	assert.Equal(t, []string{"u1", "u2"}, approversFor(&models.WorkflowInstance{}, node))
	assert.Equal(t, []string{"u9"}, approversFor(&models.WorkflowInstance{ApproverOverrides: []string{"u9"}}, node))
	assert.Empty(t, approversFor(&models.WorkflowInstance{}, &models.WorkflowNode{}))
}

func TestDispatcher_Dispatch(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	dispatcher := NewDispatcher(staticUsers{"u1": "Alice"}, discardLogger())

	instance := &models.WorkflowInstance{ID: "inst-1", BusinessType: "CONTENT", BusinessID: "42"}
	node := &models.WorkflowNode{ID: "review", Name: "Review", NodeType: models.NodeTypeApproval, ApproverIDs: []string{"u1", "u2"}}

	createdAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	var tasks []*models.WorkflowTask

	err := p.Transaction(t.Context(), func(ctx context.Context, tx persistence.Tx) error {
		var err error

		tasks, err = dispatcher.Dispatch(ctx, tx, instance, node, createdAt)

		return err
	})
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, "Alice", tasks[0].AssigneeName)
	assert.Empty(t, tasks[1].AssigneeName)

	stored, err := p.TaskRepository().ListByInstanceAndNode(t.Context(), "inst-1", "review")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	for _, task := range stored {
		assert.Equal(t, models.TaskStatusPending, task.Status)
		assert.Equal(t, "Review", task.TaskName)
		assert.True(t, createdAt.Equal(task.CreatedAt), "created at %s", task.CreatedAt)
	}
}

func TestDispatcher_Dispatch_DirectoryFailureIsTolerated(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	dispatcher := NewDispatcher(failingUsers{}, discardLogger())

	err := p.Transaction(t.Context(), func(ctx context.Context, tx persistence.Tx) error {
		tasks, err := dispatcher.Dispatch(ctx, tx,
			&models.WorkflowInstance{ID: "inst-1"},
			&models.WorkflowNode{ID: "review", Name: "Review", ApproverIDs: []string{"u1"}},
			time.Now().UTC())
		if err != nil {
			return err
		}

		assert.Empty(t, tasks[0].AssigneeName)

		return nil
	})
	require.NoError(t, err)
}

func TestDispatcher_Dispatch_NoApprovers(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	dispatcher := NewDispatcher(nil, discardLogger())

	err := p.Transaction(t.Context(), func(ctx context.Context, tx persistence.Tx) error {
		_, err := dispatcher.Dispatch(ctx, tx, &models.WorkflowInstance{ID: "inst-1"}, &models.WorkflowNode{ID: "review"}, time.Now().UTC())

		return err
	})
	require.ErrorIs(t, err, ErrNoApprovers)
}

package services

import (
	"context"
	"errors"
	"testing"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbacks_Notify(t *testing.T) {
	callbacks := NewCallbacks(discardLogger())
	handler := &recordingHandler{}
	callbacks.Register("CONTENT", handler)

	ctx := t.Context()

	require.NoError(t, callbacks.notify(ctx, &models.WorkflowInstance{
		BusinessType: "CONTENT", BusinessID: "1", Status: models.InstanceStatusApproved,
	}))
	require.NoError(t, callbacks.notify(ctx, &models.WorkflowInstance{
		BusinessType: "CONTENT", BusinessID: "2", Status: models.InstanceStatusRejected, CompletionNote: "off topic",
	}))
	require.NoError(t, callbacks.notify(ctx, &models.WorkflowInstance{
		BusinessType: "CONTENT", BusinessID: "3", Status: models.InstanceStatusCancelled,
	}))
	require.NoError(t, callbacks.notify(ctx, &models.WorkflowInstance{
		BusinessType: "PRODUCT", BusinessID: "4", Status: models.InstanceStatusApproved,
	}))

	approved, rejected := handler.calls()
	assert.Equal(t, []recordedCall{{BusinessID: "1"}}, approved)
	assert.Equal(t, []recordedCall{{BusinessID: "2", Reason: "off topic"}}, rejected)
}

func TestCallbacks_NotifyError(t *testing.T) {
	callbacks := NewCallbacks(discardLogger())
	callbacks.Register("CONTENT", BusinessHandlerFuncs{
		Approved: func(context.Context, string) error { return errors.New("boom") },
	})

	err := callbacks.notify(t.Context(), &models.WorkflowInstance{
		BusinessType: "CONTENT", BusinessID: "1", Status: models.InstanceStatusApproved,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// Nil functions are skipped.
	err = callbacks.notify(t.Context(), &models.WorkflowInstance{
		BusinessType: "CONTENT", BusinessID: "1", Status: models.InstanceStatusRejected,
	})
	require.NoError(t, err)
}

func TestCallbacks_NotifySubmitted(t *testing.T) {
	callbacks := NewCallbacks(discardLogger())
	handler := &recordingHandler{}
	callbacks.Register("CONTENT", handler)
	callbacks.Register("PRODUCT", BusinessHandlerFuncs{})

	ctx := t.Context()

	require.NoError(t, callbacks.notifySubmitted(ctx, &models.WorkflowInstance{BusinessType: "CONTENT", BusinessID: "1"}))
	require.NoError(t, callbacks.notifySubmitted(ctx, &models.WorkflowInstance{BusinessType: "PRODUCT", BusinessID: "2"}))
	require.NoError(t, callbacks.notifySubmitted(ctx, &models.WorkflowInstance{BusinessType: "ORDER", BusinessID: "3"}))

	assert.Equal(t, []string{"1"}, handler.submissions())

	handler.err = errors.New("boom")
	err := callbacks.notifySubmitted(ctx, &models.WorkflowInstance{BusinessType: "CONTENT", BusinessID: "4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submission")
}

func TestCallbacks_RegisterReplaces(t *testing.T) {
	callbacks := NewCallbacks(discardLogger())

	first := &recordingHandler{}
	second := &recordingHandler{}

	callbacks.Register("CONTENT", first)
	callbacks.Register("CONTENT", second)

	handler, ok := callbacks.Handler("CONTENT")
	require.True(t, ok)
	assert.Same(t, second, handler)

	_, ok = callbacks.Handler("PRODUCT")
	assert.False(t, ok)
}

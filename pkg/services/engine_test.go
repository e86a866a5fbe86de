package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cmsflow/approvals/pkg/events"
	"github.com/cmsflow/approvals/pkg/metrics"
	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/persistence/file"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Start(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{"u1", "u2"})

	instance := te.start(t, "W", "42")

	assert.Equal(t, models.InstanceStatusRunning, instance.Status)
	assert.Equal(t, "a-review", instance.CurrentNodeID)
	assert.Equal(t, "author", instance.InitiatorID)
	assert.Nil(t, instance.CompletedAt)

	tasks, err := te.ListInstanceTasks(t.Context(), instance.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assignees := map[string]string{}
	for _, task := range tasks {
		assert.Equal(t, models.TaskStatusPending, task.Status)
		assert.Equal(t, "a-review", task.NodeID)
		assert.Equal(t, "Review a-review", task.TaskName)
		assert.Equal(t, models.TaskTypeApproval, task.TaskType)
		assignees[task.AssigneeID] = task.AssigneeName
	}

	assert.Equal(t, map[string]string{"u1": "Alice", "u2": "Bob"}, assignees)
	assert.Equal(t, []string{"42"}, te.handler.submissions())
	assert.Equal(t, []string{
		string(events.InstanceStartedEvent),
		string(events.InstanceAdvancedEvent),
		string(events.TaskCreatedEvent),
		string(events.TaskCreatedEvent),
	}, te.publisher.types())
}

func TestEngine_Start_Rejections(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{"u1"})

	draft, err := te.workflows.Create(t.Context(), contentWorkflow("DRAFTED"))
	require.NoError(t, err)
	require.Equal(t, models.WorkflowStatusDraft, draft.Status)

	te.start(t, "W", "busy")

	tests := []struct {
		name  string
		req   StartRequest
		check func(error) bool
		is    error
	}{
		{
			name:  "unknown workflow",
			req:   StartRequest{WorkflowCode: "NOPE", BusinessType: "CONTENT", BusinessID: "1"},
			check: IsNotFound,
			is:    ErrWorkflowNotFound,
		},
		{
			name:  "draft workflow",
			req:   StartRequest{WorkflowCode: "DRAFTED", BusinessType: "CONTENT", BusinessID: "1"},
			check: IsInvalidState,
			is:    ErrWorkflowNotActive,
		},
		{
			name:  "already running",
			req:   StartRequest{WorkflowCode: "W", BusinessType: "CONTENT", BusinessID: "busy"},
			check: IsInvalidState,
			is:    ErrInstanceAlreadyRunning,
		},
		{
			name:  "missing business id",
			req:   StartRequest{WorkflowCode: "W", BusinessType: "CONTENT"},
			check: IsValidationError,
			is:    ErrInvalidRequest,
		},
		{
			name:  "unknown approval mode",
			req:   StartRequest{WorkflowCode: "W", BusinessType: "CONTENT", BusinessID: "1", ApprovalMode: "RANDOM"},
			check: IsValidationError,
			is:    ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := te.Start(t.Context(), tt.req)
			require.Error(t, err)
			require.ErrorIs(t, err, tt.is)
			assert.True(t, tt.check(err))
		})
	}
}

func TestEngine_Start_SameBusinessIDOtherTypeAllowed(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{"u1"})

	te.start(t, "W", "42")

	other, err := te.Start(t.Context(), StartRequest{WorkflowCode: "W", BusinessType: "PRODUCT", BusinessID: "42"})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRunning, other.Status)
}

func TestEngine_Start_NoApproversRollsBack(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{})

	_, err := te.Start(t.Context(), StartRequest{WorkflowCode: "W", BusinessType: "CONTENT", BusinessID: "42"})
	require.ErrorIs(t, err, ErrNoApprovers)
	assert.True(t, IsInvalidState(err))

	running, err := te.persistence.InstanceRepository().FindRunning(t.Context(), "CONTENT", "42")
	require.NoError(t, err)
	assert.Nil(t, running)
	assert.Empty(t, te.publisher.types())
}

func TestEngine_Start_NoStartNode(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.workflows.Create(t.Context(), &models.Workflow{
		Code:   "HEADLESS",
		Name:   "Headless",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.WorkflowNode{
			{ID: "review", NodeType: models.NodeTypeApproval, Name: "Review", SortOrder: 1, ApproverIDs: []string{"u1"}},
		},
	})
	require.NoError(t, err)

	_, err = te.Start(t.Context(), StartRequest{WorkflowCode: "HEADLESS", BusinessType: "CONTENT", BusinessID: "1"})
	require.ErrorIs(t, err, ErrNoStartNode)
	assert.True(t, IsConfigurationError(err))
}

func TestEngine_Start_WithoutApprovalNode(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "EMPTY")

	instance := te.start(t, "EMPTY", "7")

	assert.Equal(t, models.InstanceStatusApproved, instance.Status)
	assert.Equal(t, ApprovedNote, instance.CompletionNote)
	assert.NotNil(t, instance.CompletedAt)

	approved, rejected := te.handler.calls()
	assert.Equal(t, []recordedCall{{BusinessID: "7"}}, approved)
	assert.Empty(t, rejected)
	assert.Empty(t, te.handler.submissions())

	_, err := te.Start(t.Context(), StartRequest{
		WorkflowCode:    "EMPTY",
		BusinessType:    "CONTENT",
		BusinessID:      "8",
		RequireApproval: true,
	})
	require.ErrorIs(t, err, ErrNoApprovalNode)
	assert.True(t, IsConfigurationError(err))
}

func TestEngine_Start_ApproverOverrides(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{"u1"}, []string{"u2"})

	instance, err := te.Start(t.Context(), StartRequest{
		WorkflowCode:      "W",
		BusinessType:      "CONTENT",
		BusinessID:        "42",
		ApprovalMode:      models.ApprovalModeSerial,
		ApproverOverrides: []string{"u9", "u3", "u9"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalModeSerial, instance.ApprovalMode)

	tasks, err := te.ListInstanceTasks(t.Context(), instance.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	for _, task := range tasks {
		assert.Contains(t, []string{"u9", "u3"}, task.AssigneeID)
	}

	// Overrides apply to every approval node of the run.
	_, err = te.ApproveTask(t.Context(), te.openTask(t, instance.ID, "u9").ID, "u9", "")
	require.NoError(t, err)
	_, err = te.ApproveTask(t.Context(), te.openTask(t, instance.ID, "u3").ID, "u3", "")
	require.NoError(t, err)

	view, err := te.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "b-review", view.Instance.CurrentNodeID)
	assert.NotNil(t, te.openTask(t, instance.ID, "u9"))
}

func TestEngine_ApproveAllThenCallback(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{"u1", "u2"})

	instance := te.start(t, "W", "42")

	taskA := te.openTask(t, instance.ID, "u1")
	taskB := te.openTask(t, instance.ID, "u2")

	decided, err := te.ApproveTask(t.Context(), taskA.ID, "u1", "looks good")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusApproved, decided.Status)
	assert.Equal(t, models.TaskActionApprove, decided.Action)
	assert.NotNil(t, decided.ProcessedAt)

	view, err := te.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRunning, view.Instance.Status)

	approved, _ := te.handler.calls()
	assert.Empty(t, approved)

	_, err = te.ApproveTask(t.Context(), taskB.ID, "u2", "")
	require.NoError(t, err)

	view, err = te.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, view.Instance.Status)
	assert.Equal(t, ApprovedNote, view.Instance.CompletionNote)
	assert.NotNil(t, view.Instance.CompletedAt)
	assert.Equal(t, "W", view.WorkflowCode)
	require.Len(t, view.History, 2)
	assert.Equal(t, "Alice", view.History[0].ApproverName)
	assert.Equal(t, "looks good", view.History[0].Comment)

	approved, rejected := te.handler.calls()
	assert.Equal(t, []recordedCall{{BusinessID: "42"}}, approved)
	assert.Empty(t, rejected)

	assert.Contains(t, te.publisher.types(), string(events.InstanceApprovedEvent))
}

func TestEngine_RejectCancelsSiblings(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{"u1", "u2"})

	instance := te.start(t, "W", "42")

	taskA := te.openTask(t, instance.ID, "u1")
	taskB := te.openTask(t, instance.ID, "u2")

	_, err := te.RejectTask(t.Context(), taskA.ID, "u1", "bad content")
	require.NoError(t, err)

	view, err := te.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRejected, view.Instance.Status)
	assert.Equal(t, "bad content", view.Instance.CompletionNote)

	for _, task := range view.Tasks {
		if task.ID == taskB.ID {
			assert.Equal(t, models.TaskStatusCancelled, task.Status)
		}
	}

	approved, rejected := te.handler.calls()
	assert.Empty(t, approved)
	assert.Equal(t, []recordedCall{{BusinessID: "42", Reason: "bad content"}}, rejected)

	_, err = te.ApproveTask(t.Context(), taskB.ID, "u2", "")
	require.Error(t, err)
	assert.True(t, IsInvalidState(err))

	_, rejected = te.handler.calls()
	assert.Len(t, rejected, 1)
}

func TestEngine_MultiStageAdvance(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{"u1"}, []string{"u2", "u3"})

	instance := te.start(t, "W", "42")

	_, err := te.ApproveTask(t.Context(), te.openTask(t, instance.ID, "u1").ID, "u1", "")
	require.NoError(t, err)

	view, err := te.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRunning, view.Instance.Status)
	assert.Equal(t, "b-review", view.Instance.CurrentNodeID)
	assert.Equal(t, "Review b-review", view.CurrentNodeName)
	assert.Len(t, view.Tasks, 3)

	_, err = te.ApproveTask(t.Context(), te.openTask(t, instance.ID, "u3").ID, "u3", "")
	require.NoError(t, err)
	_, err = te.ApproveTask(t.Context(), te.openTask(t, instance.ID, "u2").ID, "u2", "")
	require.NoError(t, err)

	view, err = te.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, view.Instance.Status)
}

func TestEngine_ReorderChangesRunningRoute(t *testing.T) {
	te := newTestEngine(t)
	seeded := te.seedWorkflow(t, "W", []string{"u1"}, []string{"u2"})

	instance := te.start(t, "W", "42")
	require.Equal(t, "a-review", instance.CurrentNodeID)

	workflow, err := te.workflows.FetchByID(t.Context(), seeded.ID)
	require.NoError(t, err)

	for _, node := range workflow.Nodes {
		switch node.ID {
		case "a-review":
			node.SortOrder = 2
		case "b-review":
			node.SortOrder = 1
		}
	}

	_, err = te.workflows.Update(t.Context(), seeded.ID, workflow)
	require.NoError(t, err)

	_, err = te.ApproveTask(t.Context(), te.openTask(t, instance.ID, "u1").ID, "u1", "")
	require.NoError(t, err)

	view, err := te.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, view.Instance.Status)
	assert.Equal(t, "a-review", view.Instance.CurrentNodeID)
	assert.Len(t, view.Tasks, 1)
}

func TestEngine_TasksUseEngineClock(t *testing.T) {
	te := newTestEngine(t)
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	te.Engine = NewEngine(te.persistence, NewDispatcher(nil, discardLogger()), nil,
		WithLogger(discardLogger()),
		WithClock(func() time.Time { return fixed }),
	)
	te.seedWorkflow(t, "W", []string{"u1", "u2"})

	instance := te.start(t, "W", "42")
	assert.True(t, fixed.Equal(instance.InitiatedAt))

	tasks, err := te.ListInstanceTasks(t.Context(), instance.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	for _, task := range tasks {
		assert.True(t, fixed.Equal(task.CreatedAt), "created at %s", task.CreatedAt)
	}
}

func TestEngine_AdvanceSkipsStartAndStopsAtEnd(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.workflows.Create(t.Context(), &models.Workflow{
		Code:   "ODD",
		Name:   "Odd ordering",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.WorkflowNode{
			{ID: "start", NodeType: models.NodeTypeStart, Name: "Submit", SortOrder: 0},
			{ID: "first", NodeType: models.NodeTypeApproval, Name: "First", SortOrder: 1, ApproverIDs: []string{"u1"}},
			{ID: "again", NodeType: models.NodeTypeStart, Name: "Resubmit", SortOrder: 2},
			{ID: "end", NodeType: models.NodeTypeEnd, Name: "Done", SortOrder: 3},
			{ID: "never", NodeType: models.NodeTypeApproval, Name: "Unreachable", SortOrder: 4, ApproverIDs: []string{"u2"}},
		},
	})
	require.NoError(t, err)

	instance := te.start(t, "ODD", "1")

	_, err = te.ApproveTask(t.Context(), te.openTask(t, instance.ID, "u1").ID, "u1", "")
	require.NoError(t, err)

	view, err := te.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, view.Instance.Status)
	assert.Len(t, view.Tasks, 1)
}

func TestEngine_Cancel(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{"u1", "u2"})

	instance := te.start(t, "W", "42")

	cancelled, err := te.Cancel(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)

	tasks, err := te.ListInstanceTasks(t.Context(), instance.ID)
	require.NoError(t, err)

	for _, task := range tasks {
		assert.Equal(t, models.TaskStatusCancelled, task.Status)
	}

	approved, rejected := te.handler.calls()
	assert.Empty(t, approved)
	assert.Empty(t, rejected)

	_, err = te.Cancel(t.Context(), instance.ID)
	require.ErrorIs(t, err, ErrInstanceNotRunning)

	_, err = te.Cancel(t.Context(), "missing")
	assert.True(t, IsNotFound(err))

	// A cancelled business object may be resubmitted.
	again := te.start(t, "W", "42")
	assert.NotEqual(t, instance.ID, again.ID)
}

func TestEngine_Withdraw(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{"u1"})

	instance := te.start(t, "W", "42")

	withdrawn, err := te.Withdraw(t.Context(), "CONTENT", "42")
	require.NoError(t, err)
	assert.Equal(t, instance.ID, withdrawn.ID)
	assert.Equal(t, models.InstanceStatusCancelled, withdrawn.Status)

	_, err = te.Withdraw(t.Context(), "CONTENT", "42")
	require.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestEngine_ListInstances(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{"u1"})
	te.seedWorkflow(t, "OTHER", []string{"u1"})

	te.start(t, "W", "1")
	second := te.start(t, "W", "2")
	te.start(t, "OTHER", "3")

	_, err := te.Cancel(t.Context(), second.ID)
	require.NoError(t, err)

	all, err := te.ListInstances(t.Context(), ListInstancesRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.TotalCount)

	byCode, err := te.ListInstances(t.Context(), ListInstancesRequest{WorkflowCode: "W"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), byCode.TotalCount)

	status := models.InstanceStatusCancelled
	cancelled, err := te.ListInstances(t.Context(), ListInstancesRequest{Status: &status})
	require.NoError(t, err)
	require.Len(t, cancelled.Instances, 1)
	assert.Equal(t, second.ID, cancelled.Instances[0].ID)

	unknown, err := te.ListInstances(t.Context(), ListInstancesRequest{WorkflowCode: "NOPE"})
	require.NoError(t, err)
	assert.Empty(t, unknown.Instances)

	bad := models.InstanceStatus("PAUSED")
	_, err = te.ListInstances(t.Context(), ListInstancesRequest{Status: &bad})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestEngine_GetInstance_NotFound(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.GetInstance(t.Context(), "missing")
	require.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestEngine_CallbackFailureKeepsOutcome(t *testing.T) {
	te := newTestEngine(t)
	te.handler.err = errors.New("cms unavailable")
	te.seedWorkflow(t, "W", []string{"u1"})

	instance := te.start(t, "W", "42")

	_, err := te.ApproveTask(t.Context(), te.openTask(t, instance.ID, "u1").ID, "u1", "")
	require.NoError(t, err)

	view, err := te.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, view.Instance.Status)

	approved, _ := te.handler.calls()
	assert.Len(t, approved, 1)
}

func TestEngine_Metrics(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	recorder := metrics.NewRecorder()
	engine := NewEngine(p, NewDispatcher(nil, discardLogger()), nil, WithMetrics(recorder), WithLogger(discardLogger()))

	workflows := NewWorkflow(p)
	_, err := workflows.Create(t.Context(), &models.Workflow{
		Code:   "M",
		Name:   "Metrics",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.WorkflowNode{
			{ID: "start", NodeType: models.NodeTypeStart, Name: "Submit"},
			{ID: "review", NodeType: models.NodeTypeApproval, Name: "Review", SortOrder: 1, ApproverIDs: []string{"u1"}},
		},
	})
	require.NoError(t, err)

	instance, err := engine.Start(t.Context(), StartRequest{WorkflowCode: "M", BusinessType: "CONTENT", BusinessID: "1"})
	require.NoError(t, err)

	tasks, err := engine.ListInstanceTasks(t.Context(), instance.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Empty(t, tasks[0].AssigneeName)

	_, err = engine.ApproveTask(t.Context(), tasks[0].ID, "u1", "")
	require.NoError(t, err)

	expected := `
# HELP approvals_instances_completed_total Workflow instances that reached a terminal status.
# TYPE approvals_instances_completed_total counter
approvals_instances_completed_total{status="APPROVED"} 1
`
	require.NoError(t, testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected), "approvals_instances_completed_total"))
}

// Concurrent approvals of the last two tasks of a node advance the instance
// exactly once and notify the business handler exactly once.
func TestEngine_ConcurrentApprovalsAdvanceOnce(t *testing.T) {
	for round := range 5 {
		te := newTestEngine(t)
		te.seedWorkflow(t, "W", []string{"u1", "u2", "u3"})

		instance := te.start(t, "W", "42")

		var wg sync.WaitGroup

		for _, user := range []string{"u1", "u2", "u3"} {
			task := te.openTask(t, instance.ID, user)

			wg.Add(1)

			go func(taskID, userID string) {
				defer wg.Done()

				_, err := te.ApproveTask(context.Background(), taskID, userID, "")
				assert.NoError(t, err)
			}(task.ID, user)
		}

		wg.Wait()

		view, err := te.GetInstance(t.Context(), instance.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStatusApproved, view.Instance.Status, "round %d", round)

		approved, _ := te.handler.calls()
		assert.Len(t, approved, 1, "round %d", round)
	}
}

func TestEngine_ConcurrentApproveAndReject(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{"u1", "u2"})

	instance := te.start(t, "W", "42")
	taskA := te.openTask(t, instance.ID, "u1")
	taskB := te.openTask(t, instance.ID, "u2")

	var (
		wg   sync.WaitGroup
		errA error
		errB error
	)

	wg.Add(2)

	go func() {
		defer wg.Done()

		_, errA = te.ApproveTask(context.Background(), taskA.ID, "u1", "")
	}()

	go func() {
		defer wg.Done()

		_, errB = te.RejectTask(context.Background(), taskB.ID, "u2", "no")
	}()

	wg.Wait()

	require.NoError(t, errB)

	view, err := te.GetInstance(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRejected, view.Instance.Status)

	if errA != nil {
		assert.True(t, IsInvalidState(errA))
	}

	approved, rejected := te.handler.calls()
	assert.Empty(t, approved)
	assert.Len(t, rejected, 1)
}

func TestEngine_ConcurrentStartsOneWins(t *testing.T) {
	te := newTestEngine(t)
	te.seedWorkflow(t, "W", []string{"u1"})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		started  int
		conflict int
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := te.Start(context.Background(), StartRequest{WorkflowCode: "W", BusinessType: "CONTENT", BusinessID: "42"})

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				started++
			case errors.Is(err, ErrInstanceAlreadyRunning):
				conflict++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, 7, conflict)
}

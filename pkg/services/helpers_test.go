package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/cmsflow/approvals/pkg/eventbus"
	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/cmsflow/approvals/pkg/persistence/file"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticUsers map[string]string

func (u staticUsers) ResolveUserName(_ context.Context, userID string) (string, error) {
	return u[userID], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, string(event.GetType()))
	}

	return types
}

type recordedCall struct {
	BusinessID string
	Reason     string
}

type recordingHandler struct {
	mu        sync.Mutex
	submitted []string
	approved  []recordedCall
	rejected  []recordedCall
	err       error
}

func (h *recordingHandler) OnSubmitted(_ context.Context, businessID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.submitted = append(h.submitted, businessID)

	return h.err
}

func (h *recordingHandler) OnApproved(_ context.Context, businessID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.approved = append(h.approved, recordedCall{BusinessID: businessID})

	return h.err
}

func (h *recordingHandler) OnRejected(_ context.Context, businessID, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rejected = append(h.rejected, recordedCall{BusinessID: businessID, Reason: reason})

	return h.err
}

func (h *recordingHandler) calls() (approved, rejected []recordedCall) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]recordedCall(nil), h.approved...), append([]recordedCall(nil), h.rejected...)
}

func (h *recordingHandler) submissions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.submitted...)
}

type testEngine struct {
	*Engine

	persistence persistence.Persistence
	workflows   *Workflow
	publisher   *recordingPublisher
	handler     *recordingHandler
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := discardLogger()
	publisher := &recordingPublisher{}
	handler := &recordingHandler{}

	callbacks := NewCallbacks(logger)
	callbacks.Register("CONTENT", handler)

	users := staticUsers{"u1": "Alice", "u2": "Bob", "u3": "Carol", "u9": "Zed"}

	engine := NewEngine(p, NewDispatcher(users, logger), callbacks,
		WithEventPublisher(publisher),
		WithLogger(logger),
	)

	return &testEngine{
		Engine:      engine,
		persistence: p,
		workflows:   NewWorkflow(p),
		publisher:   publisher,
		handler:     handler,
	}
}

// seedWorkflow stores an ACTIVE workflow START -> approvals... -> END where
// each approval node lists its approvers.
func (te *testEngine) seedWorkflow(t *testing.T, code string, approvals ...[]string) *models.Workflow {
	t.Helper()

	nodes := []*models.WorkflowNode{
		{ID: "start", NodeType: models.NodeTypeStart, Name: "Submit", SortOrder: 0},
	}

	for i, approvers := range approvals {
		nodes = append(nodes, &models.WorkflowNode{
			ID:          nodeID(i),
			NodeType:    models.NodeTypeApproval,
			Name:        "Review " + nodeID(i),
			SortOrder:   i + 1,
			ApproverIDs: approvers,
		})
	}

	nodes = append(nodes, &models.WorkflowNode{
		ID: "end", NodeType: models.NodeTypeEnd, Name: "Done", SortOrder: len(approvals) + 1,
	})

	workflow, err := te.workflows.Create(t.Context(), &models.Workflow{
		Code:   code,
		Name:   code + " approval",
		Status: models.WorkflowStatusActive,
		Nodes:  nodes,
	})
	require.NoError(t, err)

	return workflow
}

func nodeID(i int) string {
	return string(rune('a'+i)) + "-review"
}

func (te *testEngine) start(t *testing.T, code, businessID string) *models.WorkflowInstance {
	t.Helper()

	instance, err := te.Start(t.Context(), StartRequest{
		WorkflowCode:  code,
		BusinessType:  "CONTENT",
		BusinessID:    businessID,
		BusinessTitle: "Article " + businessID,
		InitiatorID:   "author",
	})
	require.NoError(t, err)

	return instance
}

// openTask returns the open task of an assignee on an instance.
func (te *testEngine) openTask(t *testing.T, instanceID, assigneeID string) *models.WorkflowTask {
	t.Helper()

	tasks, err := te.ListInstanceTasks(t.Context(), instanceID)
	require.NoError(t, err)

	for _, task := range tasks {
		if task.AssigneeID == assigneeID && task.Status.IsOpen() {
			return task
		}
	}

	require.Failf(t, "no open task", "assignee %s on instance %s", assigneeID, instanceID)

	return nil
}

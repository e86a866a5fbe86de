package models

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearWorkflow() *Workflow {
	return &Workflow{
		ID:     "wf-1",
		Code:   "CONTENT_REVIEW",
		Name:   "Content review",
		Status: WorkflowStatusActive,
		Nodes: []*WorkflowNode{
			{ID: "end", NodeType: NodeTypeEnd, Name: "End", SortOrder: 99},
			{ID: "legal", NodeType: NodeTypeApproval, Name: "Legal", SortOrder: 20, ApproverIDs: []string{"u3"}},
			{ID: "start", NodeType: NodeTypeStart, Name: "Start", SortOrder: 0},
			{ID: "editor", NodeType: NodeTypeApproval, Name: "Editor", SortOrder: 10, ApproverIDs: []string{"u1", "u2"}},
		},
	}
}

func TestWorkflow_SortedNodes(t *testing.T) {
	wf := linearWorkflow()

	nodes := wf.SortedNodes()

	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.ID)
	}

	assert.Equal(t, []string{"start", "editor", "legal", "end"}, ids)
	assert.Equal(t, "end", wf.Nodes[0].ID, "declared order must not change")
}

func TestWorkflow_SortedNodes_StableOnTies(t *testing.T) {
	wf := &Workflow{Nodes: []*WorkflowNode{
		{ID: "b", NodeType: NodeTypeApproval, SortOrder: 1},
		{ID: "a", NodeType: NodeTypeApproval, SortOrder: 1},
	}}

	nodes := wf.SortedNodes()

	assert.Equal(t, "b", nodes[0].ID)
	assert.Equal(t, "a", nodes[1].ID)
}

func TestWorkflow_FirstApprovalNode(t *testing.T) {
	node, ok := linearWorkflow().FirstApprovalNode()
	require.True(t, ok)
	assert.Equal(t, "editor", node.ID)

	degenerate := &Workflow{Nodes: []*WorkflowNode{
		{ID: "start", NodeType: NodeTypeStart},
		{ID: "end", NodeType: NodeTypeEnd, SortOrder: 1},
	}}

	_, ok = degenerate.FirstApprovalNode()
	assert.False(t, ok)
}

func TestWorkflow_StartNode(t *testing.T) {
	node, ok := linearWorkflow().StartNode()
	require.True(t, ok)
	assert.Equal(t, "start", node.ID)
}

func TestWorkflow_NextNode(t *testing.T) {
	wf := linearWorkflow()

	tests := []struct {
		name      string
		current   string
		wantID    string
		wantFound bool
	}{
		{name: "start to first approval", current: "start", wantID: "editor", wantFound: true},
		{name: "approval to approval", current: "editor", wantID: "legal", wantFound: true},
		{name: "last approval to end", current: "legal", wantID: "end", wantFound: true},
		{name: "end has no successor", current: "end", wantID: "", wantFound: true},
		{name: "unknown node", current: "missing", wantID: "", wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, found := wf.NextNode(tt.current)

			assert.Equal(t, tt.wantFound, found)

			if tt.wantID == "" {
				assert.Nil(t, next)
			} else {
				require.NotNil(t, next)
				assert.Equal(t, tt.wantID, next.ID)
			}
		})
	}
}

func TestWorkflow_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	require.NoError(t, validate.Struct(linearWorkflow()))

	wf := linearWorkflow()
	wf.Nodes[0].NodeType = "CONDITION"
	assert.Error(t, validate.Struct(wf))

	wf = linearWorkflow()
	wf.Code = ""
	assert.Error(t, validate.Struct(wf))

	wf = linearWorkflow()
	wf.Status = "PUBLISHED"
	assert.Error(t, validate.Struct(wf))
}

func TestNodeType_Valid(t *testing.T) {
	for _, nodeType := range NodeTypes {
		assert.True(t, nodeType.Valid(), nodeType)
	}

	assert.False(t, NodeType("CONDITION").Valid())
	assert.False(t, NodeType("").Valid())
}

func TestStatuses(t *testing.T) {
	assert.False(t, InstanceStatusRunning.IsTerminal())
	assert.True(t, InstanceStatusApproved.IsTerminal())
	assert.True(t, InstanceStatusRejected.IsTerminal())
	assert.True(t, InstanceStatusCancelled.IsTerminal())

	assert.True(t, TaskStatusPending.IsOpen())
	assert.True(t, TaskStatusInProgress.IsOpen())
	assert.False(t, TaskStatusApproved.IsOpen())
	assert.False(t, TaskStatusRejected.IsOpen())
	assert.False(t, TaskStatusCancelled.IsOpen())
}

func TestWorkflowTask_Decide(t *testing.T) {
	now := time.Now().UTC()
	task := &WorkflowTask{Status: TaskStatusPending}

	task.Decide(TaskActionReject, "off-brand", now)

	assert.Equal(t, TaskStatusRejected, task.Status)
	assert.Equal(t, TaskActionReject, task.Action)
	assert.Equal(t, "off-brand", task.Comment)
	require.NotNil(t, task.ProcessedAt)
	assert.Equal(t, now, *task.ProcessedAt)
}

func TestWorkflowInstance_Complete(t *testing.T) {
	now := time.Now().UTC()
	instance := &WorkflowInstance{Status: InstanceStatusRunning}
	require.True(t, instance.IsRunning())

	instance.Complete(InstanceStatusApproved, "approved", now)

	assert.False(t, instance.IsRunning())
	assert.Equal(t, "approved", instance.CompletionNote)
	require.NotNil(t, instance.CompletedAt)
}

// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/cmsflow/approvals/pkg/models"
)

// CreateTestWorkflow creates an ACTIVE workflow START -> APPROVAL(u1) -> END
// that can be overridden.
func CreateTestWorkflow(code string, overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		Code:        code,
		Name:        "Test " + code,
		Description: "Test workflow",
		Status:      models.WorkflowStatusActive,
		Nodes: []*models.WorkflowNode{
			StartNode(0),
			ApprovalNode("review", 1, "u1"),
			EndNode(2),
		},
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithStatus sets the workflow status.
func WithStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

// WithNodes replaces the node list.
func WithNodes(nodes ...*models.WorkflowNode) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Nodes = nodes
	}
}

func StartNode(sortOrder int) *models.WorkflowNode {
	return &models.WorkflowNode{ID: "start", NodeType: models.NodeTypeStart, Name: "Submitted", SortOrder: sortOrder}
}

func ApprovalNode(id string, sortOrder int, approverIDs ...string) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:          id,
		NodeType:    models.NodeTypeApproval,
		Name:        "Approval " + id,
		SortOrder:   sortOrder,
		ApproverIDs: approverIDs,
	}
}

func EndNode(sortOrder int) *models.WorkflowNode {
	return &models.WorkflowNode{ID: "end", NodeType: models.NodeTypeEnd, Name: "Completed", SortOrder: sortOrder}
}

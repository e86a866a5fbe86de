// Package models defines the core domain models for linear approval workflows
package models

import (
	"sort"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "DRAFT"    // Editable, not startable
	WorkflowStatusActive   WorkflowStatus = "ACTIVE"   // Startable
	WorkflowStatusInactive WorkflowStatus = "INACTIVE" // Archived, not startable
)

// WorkflowStatuses lists every accepted definition status.
var WorkflowStatuses = []WorkflowStatus{
	WorkflowStatusDraft,
	WorkflowStatusActive,
	WorkflowStatusInactive,
}

// Workflow is an approval workflow definition: an ordered list of nodes.
type Workflow struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"                  validate:"required,max=64"`
	Name        string          `json:"name"                  validate:"required,max=128"`
	Description string          `json:"description,omitempty"`
	Status      WorkflowStatus  `json:"status"                validate:"required,oneof=DRAFT ACTIVE INACTIVE"`
	Version     int             `json:"version"`
	Nodes       []*WorkflowNode `json:"nodes"                 validate:"dive"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

// IsActive reports whether instances may be started from the definition.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// SortedNodes returns the nodes ordered by SortOrder. Nodes sharing a sort
// order keep their declared position.
func (w *Workflow) SortedNodes() []*WorkflowNode {
	nodes := make([]*WorkflowNode, len(w.Nodes))
	copy(nodes, w.Nodes)

	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].SortOrder < nodes[j].SortOrder
	})

	return nodes
}

// NodeByID returns the node with the given id.
func (w *Workflow) NodeByID(id string) (*WorkflowNode, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// StartNode returns the first START node in sort order.
func (w *Workflow) StartNode() (*WorkflowNode, bool) {
	return w.firstOfType(NodeTypeStart)
}

// FirstApprovalNode returns the APPROVAL node with the lowest sort order.
func (w *Workflow) FirstApprovalNode() (*WorkflowNode, bool) {
	return w.firstOfType(NodeTypeApproval)
}

// NextNode returns the node following currentID by sort order. The second
// result is false when currentID is not part of the workflow; a nil node with
// true means currentID is the last node.
func (w *Workflow) NextNode(currentID string) (*WorkflowNode, bool) {
	nodes := w.SortedNodes()

	for i, node := range nodes {
		if node.ID != currentID {
			continue
		}

		if i+1 < len(nodes) {
			return nodes[i+1], true
		}

		return nil, true
	}

	return nil, false
}

func (w *Workflow) firstOfType(nodeType NodeType) (*WorkflowNode, bool) {
	for _, node := range w.SortedNodes() {
		if node.NodeType == nodeType {
			return node, true
		}
	}

	return nil, false
}

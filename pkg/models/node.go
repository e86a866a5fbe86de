package models

import "time"

// NodeType is the closed set of step kinds a workflow may contain.
type NodeType string

const (
	NodeTypeStart    NodeType = "START"
	NodeTypeApproval NodeType = "APPROVAL"
	NodeTypeEnd      NodeType = "END"
)

// NodeTypes lists every accepted node type.
var NodeTypes = []NodeType{NodeTypeStart, NodeTypeApproval, NodeTypeEnd}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeStart, NodeTypeApproval, NodeTypeEnd:
		return true
	default:
		return false
	}
}

// WorkflowNode is one step of a workflow definition.
type WorkflowNode struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	NodeType    NodeType  `json:"node_type"              validate:"required,oneof=START APPROVAL END"`
	Name        string    `json:"name"                   validate:"required,max=128"`
	SortOrder   int       `json:"sort_order"`
	ApproverIDs []string  `json:"approver_ids,omitempty" validate:"dive,required"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsApproval reports whether the node gates progress on human approval.
func (n *WorkflowNode) IsApproval() bool {
	return n.NodeType == NodeTypeApproval
}

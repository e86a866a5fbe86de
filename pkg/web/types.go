// Package web provides HTTP request and response types for the approvals API.
package web

import "github.com/cmsflow/approvals/pkg/models"

// NodeRequest describes one node of a workflow definition.
type NodeRequest struct {
	ID          string   `json:"id,omitempty"`
	NodeType    string   `json:"node_type"              validate:"required,oneof=START APPROVAL END"`
	Name        string   `json:"name"                   validate:"required,max=128"`
	SortOrder   int      `json:"sort_order"`
	ApproverIDs []string `json:"approver_ids,omitempty" validate:"dive,required"`
}

// WorkflowRequest is the body of workflow create and full update calls.
type WorkflowRequest struct {
	Code        string         `json:"code"                  validate:"required,max=64"`
	Name        string         `json:"name"                  validate:"required,max=128"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status,omitempty"      validate:"omitempty,oneof=DRAFT ACTIVE INACTIVE"`
	Nodes       []*NodeRequest `json:"nodes"                 validate:"dive,required"`
}

// ToWorkflow converts the request into a workflow model.
func (r *WorkflowRequest) ToWorkflow(createdBy string) *models.Workflow {
	workflow := &models.Workflow{
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		Status:      models.WorkflowStatus(r.Status),
		CreatedBy:   createdBy,
		Nodes:       make([]*models.WorkflowNode, 0, len(r.Nodes)),
	}

	for _, node := range r.Nodes {
		workflow.Nodes = append(workflow.Nodes, &models.WorkflowNode{
			ID:          node.ID,
			NodeType:    models.NodeType(node.NodeType),
			Name:        node.Name,
			SortOrder:   node.SortOrder,
			ApproverIDs: node.ApproverIDs,
		})
	}

	return workflow
}

// SetStatusRequest changes the lifecycle status of a workflow.
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=DRAFT ACTIVE INACTIVE"`
}

// StartInstanceRequest submits a business object for approval. The
// initiator is the caller.
type StartInstanceRequest struct {
	WorkflowCode      string   `json:"workflow_code"                validate:"required"`
	BusinessType      string   `json:"business_type"                validate:"required,max=64"`
	BusinessID        string   `json:"business_id"                  validate:"required,max=128"`
	BusinessTitle     string   `json:"business_title,omitempty"     validate:"max=256"`
	ApprovalMode      string   `json:"approval_mode,omitempty"      validate:"omitempty,oneof=PARALLEL SERIAL"`
	ApproverOverrides []string `json:"approver_overrides,omitempty" validate:"omitempty,dive,required"`
	Comment           string   `json:"comment,omitempty"            validate:"max=1000"`
	RequireApproval   bool     `json:"require_approval,omitempty"`
}

// DecisionRequest carries the optional comment of an approve or reject.
type DecisionRequest struct {
	Comment string `json:"comment,omitempty" validate:"max=1000"`
}

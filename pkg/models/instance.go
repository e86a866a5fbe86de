package models

import "time"

// InstanceStatus is the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusRunning   InstanceStatus = "RUNNING"
	InstanceStatusApproved  InstanceStatus = "APPROVED"
	InstanceStatusRejected  InstanceStatus = "REJECTED"
	InstanceStatusCancelled InstanceStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusApproved || s == InstanceStatusRejected || s == InstanceStatusCancelled
}

// ApprovalMode is informational metadata recorded by the submitter.
type ApprovalMode string

const (
	ApprovalModeParallel ApprovalMode = "PARALLEL"
	ApprovalModeSerial   ApprovalMode = "SERIAL"
)

// WorkflowInstance is one run of a workflow against a business object.
type WorkflowInstance struct {
	ID                string         `json:"id"`
	WorkflowID        string         `json:"workflow_id"`
	BusinessType      string         `json:"business_type"`
	BusinessID        string         `json:"business_id"`
	BusinessTitle     string         `json:"business_title,omitempty"`
	Status            InstanceStatus `json:"status"`
	InitiatorID       string         `json:"initiator_id,omitempty"`
	InitiatedAt       time.Time      `json:"initiated_at"`
	CurrentNodeID     string         `json:"current_node_id,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	CompletionNote    string         `json:"completion_note,omitempty"`
	ApprovalMode      ApprovalMode   `json:"approval_mode,omitempty"`
	ApproverOverrides []string       `json:"approver_overrides,omitempty"`
	Comment           string         `json:"comment,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         *time.Time     `json:"deleted_at,omitempty"`
}

// IsRunning reports whether the instance still accepts task decisions.
func (i *WorkflowInstance) IsRunning() bool {
	return i.Status == InstanceStatusRunning
}

// Complete moves the instance into a terminal status.
func (i *WorkflowInstance) Complete(status InstanceStatus, note string, at time.Time) {
	i.Status = status
	i.CompletionNote = note
	i.CompletedAt = &at
	i.UpdatedAt = at
}

package models

import "time"

// ApprovalRecord is an append-only audit entry for one task decision.
type ApprovalRecord struct {
	ID           string     `json:"id"`
	InstanceID   string     `json:"instance_id"`
	TaskID       string     `json:"task_id"`
	NodeID       string     `json:"node_id"`
	NodeName     string     `json:"node_name"`
	ApproverID   string     `json:"approver_id"`
	ApproverName string     `json:"approver_name"`
	Action       TaskAction `json:"action"`
	Comment      string     `json:"comment,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

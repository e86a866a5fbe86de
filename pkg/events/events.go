// Package events defines event types and structures for approval lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every approval lifecycle event.
const Topic = "approvals.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Instance lifecycle events.
	InstanceStartedEvent   EventType = "instance.started"
	InstanceAdvancedEvent  EventType = "instance.advanced"
	InstanceApprovedEvent  EventType = "instance.approved"
	InstanceRejectedEvent  EventType = "instance.rejected"
	InstanceCancelledEvent EventType = "instance.cancelled"

	// Task events.
	TaskCreatedEvent  EventType = "task.created"
	TaskApprovedEvent EventType = "task.approved"
	TaskRejectedEvent EventType = "task.rejected"
)

type BaseEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	InstanceID   string    `json:"instance_id"`
	WorkflowID   string    `json:"workflow_id"`
	BusinessType string    `json:"business_type"`
	BusinessID   string    `json:"business_id"`
}

// NewBaseEvent stamps an event of the given type for an instance.
func NewBaseEvent(eventType EventType, instanceID, workflowID, businessType, businessID string) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		InstanceID:   instanceID,
		WorkflowID:   workflowID,
		BusinessType: businessType,
		BusinessID:   businessID,
	}
}

type InstanceStarted struct {
	BaseEvent

	InitiatorID   string `json:"initiator_id,omitempty"`
	CurrentNodeID string `json:"current_node_id,omitempty"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceAdvanced struct {
	BaseEvent

	FromNodeID string `json:"from_node_id"`
	ToNodeID   string `json:"to_node_id"`
}

func (e InstanceAdvanced) GetType() EventType {
	return InstanceAdvancedEvent
}

type InstanceApproved struct {
	BaseEvent

	CompletionNote string `json:"completion_note,omitempty"`
}

func (e InstanceApproved) GetType() EventType {
	return InstanceApprovedEvent
}

type InstanceRejected struct {
	BaseEvent

	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason,omitempty"`
}

func (e InstanceRejected) GetType() EventType {
	return InstanceRejectedEvent
}

type InstanceCancelled struct {
	BaseEvent

	CancelledTasks int `json:"cancelled_tasks"`
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}

type TaskCreated struct {
	BaseEvent

	TaskID     string `json:"task_id"`
	NodeID     string `json:"node_id"`
	AssigneeID string `json:"assignee_id"`
}

func (e TaskCreated) GetType() EventType {
	return TaskCreatedEvent
}

type TaskApproved struct {
	BaseEvent

	TaskID     string `json:"task_id"`
	NodeID     string `json:"node_id"`
	ApproverID string `json:"approver_id"`
	Comment    string `json:"comment,omitempty"`
}

func (e TaskApproved) GetType() EventType {
	return TaskApprovedEvent
}

type TaskRejected struct {
	BaseEvent

	TaskID     string `json:"task_id"`
	NodeID     string `json:"node_id"`
	ApproverID string `json:"approver_id"`
	Comment    string `json:"comment,omitempty"`
}

func (e TaskRejected) GetType() EventType {
	return TaskRejectedEvent
}

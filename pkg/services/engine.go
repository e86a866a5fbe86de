package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmsflow/approvals/pkg/eventbus"
	"github.com/cmsflow/approvals/pkg/events"
	"github.com/cmsflow/approvals/pkg/metrics"
	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/otelhelper"
	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ApprovedNote is the completion note of an instance that passed every node.
const ApprovedNote = "approved"

// Engine drives workflow instances through their nodes.
type Engine struct {
	persistence persistence.Persistence
	dispatcher  *Dispatcher
	callbacks   *Callbacks
	publisher   eventbus.EventPublisher
	metrics     *metrics.Recorder
	tracer      trace.Tracer
	logger      *slog.Logger
	validate    *validator.Validate
	now         func() time.Time
}

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithEventPublisher publishes lifecycle events after every commit.
func WithEventPublisher(publisher eventbus.EventPublisher) EngineOption {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

func WithMetrics(recorder *metrics.Recorder) EngineOption {
	return func(e *Engine) {
		e.metrics = recorder
	}
}

func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source used for decision timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine. callbacks may be nil when no business type
// needs to be notified.
func NewEngine(
	persistence persistence.Persistence,
	dispatcher *Dispatcher,
	callbacks *Callbacks,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		persistence: persistence,
		dispatcher:  dispatcher,
		callbacks:   callbacks,
		tracer:      otel.Tracer("approvals/engine"),
		logger:      slog.Default(),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("module", "engine")

	return e
}

// StartRequest submits a business object for approval.
type StartRequest struct {
	WorkflowCode  string `validate:"required"`
	BusinessType  string `validate:"required,max=64"`
	BusinessID    string `validate:"required,max=128"`
	BusinessTitle string `validate:"max=256"`
	InitiatorID   string
	// ApprovalMode is recorded on the instance; it does not change routing.
	ApprovalMode models.ApprovalMode `validate:"omitempty,oneof=PARALLEL SERIAL"`
	// ApproverOverrides replaces the approvers of every APPROVAL node of
	// this run when not empty.
	ApproverOverrides []string `validate:"omitempty,dive,required"`
	Comment           string
	// RequireApproval rejects workflows without an APPROVAL node instead of
	// approving the instance immediately.
	RequireApproval bool
}

// effects collects what must happen once a transaction has committed.
type effects struct {
	events    []eventbus.Event
	submitted []*models.WorkflowInstance
	completed []*models.WorkflowInstance
	// dispatched counts created tasks per business type.
	dispatched map[string]int
}

func (fx *effects) emit(event eventbus.Event) {
	fx.events = append(fx.events, event)
}

// Start creates a RUNNING instance for a business object and dispatches the
// tasks of the workflow's first APPROVAL node.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.Start",
		attribute.String(otelhelper.WorkflowCodeKey, req.WorkflowCode),
		attribute.String(otelhelper.BusinessTypeKey, req.BusinessType),
		attribute.String(otelhelper.BusinessIDKey, req.BusinessID),
	)
	defer span.End()

	err := e.validate.Struct(req)
	if err != nil {
		err = NewValidationError("Start", "INVALID_START_REQUEST", err.Error(), ErrInvalidRequest)
		otelhelper.SetError(span, err)

		return nil, err
	}

	var (
		instance *models.WorkflowInstance
		fx       effects
	)

	err = e.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var txErr error

		instance, txErr = e.start(ctx, tx, req, &fx)

		return txErr
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, instance.ID))
	e.metrics.InstanceStarted(req.WorkflowCode)
	e.logger.InfoContext(ctx, "Started workflow instance",
		"instance_id", instance.ID,
		"workflow_code", req.WorkflowCode,
		"business_type", req.BusinessType,
		"business_id", req.BusinessID)

	if instance.Status == models.InstanceStatusRunning {
		fx.submitted = append(fx.submitted, instance)
	}

	e.afterCommit(ctx, &fx)

	return instance, nil
}

func (e *Engine) start(
	ctx context.Context,
	tx persistence.Tx,
	req StartRequest,
	fx *effects,
) (*models.WorkflowInstance, error) {
	workflow, err := tx.Workflows().GetByCode(ctx, req.WorkflowCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	if workflow == nil {
		return nil, persistence.NewWorkflowCodeError("Start", req.WorkflowCode, ErrWorkflowNotFound)
	}

	if !workflow.IsActive() {
		return nil, &ServiceError{
			Op:      "Start",
			Code:    "WORKFLOW_NOT_ACTIVE",
			Message: fmt.Sprintf("workflow '%s' is %s", workflow.Code, workflow.Status),
			Err:     ErrWorkflowNotActive,
		}
	}

	running, err := tx.Instances().FindRunning(ctx, req.BusinessType, req.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("failed to check running instances: %w", err)
	}

	if running != nil {
		return nil, &persistence.InstanceError{
			Op:           "Start",
			InstanceID:   running.ID,
			BusinessType: req.BusinessType,
			BusinessID:   req.BusinessID,
			Err:          ErrInstanceAlreadyRunning,
		}
	}

	startNode, ok := workflow.StartNode()
	if !ok {
		return nil, &ServiceError{
			Op:      "Start",
			Code:    "NO_START_NODE",
			Message: fmt.Sprintf("workflow '%s' has no START node", workflow.Code),
			Err:     ErrNoStartNode,
		}
	}

	firstApproval, hasApproval := workflow.FirstApprovalNode()
	if !hasApproval && req.RequireApproval {
		return nil, &ServiceError{
			Op:      "Start",
			Code:    "NO_APPROVAL_NODE",
			Message: fmt.Sprintf("workflow '%s' has no APPROVAL node", workflow.Code),
			Err:     ErrNoApprovalNode,
		}
	}

	now := e.now()
	instance := &models.WorkflowInstance{
		WorkflowID:        workflow.ID,
		BusinessType:      req.BusinessType,
		BusinessID:        req.BusinessID,
		BusinessTitle:     req.BusinessTitle,
		Status:            models.InstanceStatusRunning,
		InitiatorID:       req.InitiatorID,
		InitiatedAt:       now,
		CurrentNodeID:     startNode.ID,
		ApprovalMode:      req.ApprovalMode,
		ApproverOverrides: req.ApproverOverrides,
		Comment:           req.Comment,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = tx.Instances().Create(ctx, instance)
	if err != nil {
		return nil, err
	}

	fx.emit(events.InstanceStarted{
		BaseEvent:     baseEvent(events.InstanceStartedEvent, instance),
		InitiatorID:   instance.InitiatorID,
		CurrentNodeID: instance.CurrentNodeID,
	})

	if !hasApproval {
		err = e.complete(ctx, tx, instance, models.InstanceStatusApproved, ApprovedNote, "", fx)
		if err != nil {
			return nil, err
		}

		return instance, nil
	}

	err = e.moveTo(ctx, tx, instance, firstApproval, fx)
	if err != nil {
		return nil, err
	}

	return instance, nil
}

// advance moves a RUNNING instance past its current node. START nodes are
// skipped; reaching an END node or running out of nodes approves the
// instance.
func (e *Engine) advance(
	ctx context.Context,
	tx persistence.Tx,
	workflow *models.Workflow,
	instance *models.WorkflowInstance,
	fx *effects,
) error {
	next, found := workflow.NextNode(instance.CurrentNodeID)
	if !found {
		return &ServiceError{
			Op:      "advance",
			Code:    "NODE_NOT_FOUND",
			Message: fmt.Sprintf("current node %s is not part of workflow %s", instance.CurrentNodeID, workflow.ID),
			Err:     ErrNodeNotFound,
		}
	}

	for next != nil && next.NodeType == models.NodeTypeStart {
		next, _ = workflow.NextNode(next.ID)
	}

	if next == nil || next.NodeType == models.NodeTypeEnd {
		return e.complete(ctx, tx, instance, models.InstanceStatusApproved, ApprovedNote, "", fx)
	}

	return e.moveTo(ctx, tx, instance, next, fx)
}

// moveTo points the instance at an APPROVAL node and dispatches its tasks.
func (e *Engine) moveTo(
	ctx context.Context,
	tx persistence.Tx,
	instance *models.WorkflowInstance,
	node *models.WorkflowNode,
	fx *effects,
) error {
	from := instance.CurrentNodeID
	instance.CurrentNodeID = node.ID

	err := tx.Instances().Update(ctx, instance)
	if err != nil {
		return fmt.Errorf("failed to move instance to node %s: %w", node.ID, err)
	}

	tasks, err := e.dispatcher.Dispatch(ctx, tx, instance, node, e.now())
	if err != nil {
		return err
	}

	fx.emit(events.InstanceAdvanced{
		BaseEvent:  baseEvent(events.InstanceAdvancedEvent, instance),
		FromNodeID: from,
		ToNodeID:   node.ID,
	})

	for _, task := range tasks {
		fx.emit(events.TaskCreated{
			BaseEvent:  baseEvent(events.TaskCreatedEvent, instance),
			TaskID:     task.ID,
			NodeID:     task.NodeID,
			AssigneeID: task.AssigneeID,
		})
	}

	if fx.dispatched == nil {
		fx.dispatched = make(map[string]int)
	}

	fx.dispatched[instance.BusinessType] += len(tasks)

	return nil
}

// complete finalizes an instance and cancels its remaining open tasks.
// actorID names who caused a rejection.
func (e *Engine) complete(
	ctx context.Context,
	tx persistence.Tx,
	instance *models.WorkflowInstance,
	status models.InstanceStatus,
	note string,
	actorID string,
	fx *effects,
) error {
	instance.Complete(status, note, e.now())

	err := tx.Instances().Update(ctx, instance)
	if err != nil {
		return fmt.Errorf("failed to complete instance: %w", err)
	}

	cancelled, err := tx.Tasks().CancelOpenByInstance(ctx, instance.ID)
	if err != nil {
		return err
	}

	switch status {
	case models.InstanceStatusApproved:
		fx.emit(events.InstanceApproved{
			BaseEvent:      baseEvent(events.InstanceApprovedEvent, instance),
			CompletionNote: note,
		})
	case models.InstanceStatusRejected:
		fx.emit(events.InstanceRejected{
			BaseEvent:  baseEvent(events.InstanceRejectedEvent, instance),
			RejectedBy: actorID,
			Reason:     note,
		})
	case models.InstanceStatusCancelled:
		fx.emit(events.InstanceCancelled{
			BaseEvent:      baseEvent(events.InstanceCancelledEvent, instance),
			CancelledTasks: cancelled,
		})
	}

	snapshot := *instance
	fx.completed = append(fx.completed, &snapshot)

	return nil
}

// Cancel stops a RUNNING instance and cancels its open tasks. No business
// handler is notified.
func (e *Engine) Cancel(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.Cancel",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
	)
	defer span.End()

	var (
		instance *models.WorkflowInstance
		fx       effects
	)

	err := e.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var txErr error

		instance, txErr = tx.LockInstance(ctx, instanceID)
		if txErr != nil {
			return fmt.Errorf("failed to lock instance: %w", txErr)
		}

		if instance == nil {
			return &persistence.InstanceError{Op: "Cancel", InstanceID: instanceID, Err: ErrInstanceNotFound}
		}

		if !instance.IsRunning() {
			return instanceNotRunning("Cancel", instance)
		}

		return e.complete(ctx, tx, instance, models.InstanceStatusCancelled, "", "", &fx)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.logger.InfoContext(ctx, "Cancelled workflow instance", "instance_id", instance.ID)
	e.afterCommit(ctx, &fx)

	return instance, nil
}

// Withdraw cancels the RUNNING instance of a business object.
func (e *Engine) Withdraw(ctx context.Context, businessType, businessID string) (*models.WorkflowInstance, error) {
	running, err := e.persistence.InstanceRepository().FindRunning(ctx, businessType, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to find running instance: %w", err)
	}

	if running == nil {
		return nil, &persistence.InstanceError{
			Op:           "Withdraw",
			BusinessType: businessType,
			BusinessID:   businessID,
			Err:          ErrInstanceNotFound,
		}
	}

	return e.Cancel(ctx, running.ID)
}

// InstanceView is an instance together with everything needed to render it.
type InstanceView struct {
	Instance        *models.WorkflowInstance `json:"instance"`
	WorkflowName    string                   `json:"workflow_name"`
	WorkflowCode    string                   `json:"workflow_code"`
	CurrentNodeName string                   `json:"current_node_name,omitempty"`
	Tasks           []*models.WorkflowTask   `json:"tasks"`
	History         []*models.ApprovalRecord `json:"history"`
}

// GetInstance returns an instance with its tasks and approval history.
func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*InstanceView, error) {
	instance, err := e.fetchInstance(ctx, "GetInstance", instanceID)
	if err != nil {
		return nil, err
	}

	view := &InstanceView{Instance: instance}

	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, instance.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	if workflow != nil {
		view.WorkflowName = workflow.Name
		view.WorkflowCode = workflow.Code

		if node, ok := workflow.NodeByID(instance.CurrentNodeID); ok {
			view.CurrentNodeName = node.Name
		}
	}

	view.Tasks, err = e.persistence.TaskRepository().ListByInstance(ctx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	view.History, err = e.persistence.HistoryRepository().ListByInstance(ctx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	return view, nil
}

// ListInstancesRequest filters instances. An empty field matches everything.
type ListInstancesRequest struct {
	Limit  int
	Offset int

	WorkflowCode string
	BusinessType string
	BusinessID   string
	InitiatorID  string
	Status       *models.InstanceStatus
}

type ListInstancesResponse struct {
	Instances   []*models.WorkflowInstance `json:"instances"`
	TotalCount  int64                      `json:"total_count"`
	HasNextPage bool                       `json:"has_next_page"`
}

// ListInstances returns one page of instances, newest first.
func (e *Engine) ListInstances(ctx context.Context, req ListInstancesRequest) (*ListInstancesResponse, error) {
	limit, offset := normalizePage(req.Limit, req.Offset)

	opts := persistence.ListInstancesOptions{
		Limit:        limit,
		Offset:       offset,
		BusinessType: req.BusinessType,
		BusinessID:   req.BusinessID,
		InitiatorID:  req.InitiatorID,
		Status:       req.Status,
	}

	if req.Status != nil && !validInstanceStatus(*req.Status) {
		return nil, NewValidationError("ListInstances", "INVALID_STATUS",
			fmt.Sprintf("invalid instance status '%s'", *req.Status), ErrInvalidStatus)
	}

	if req.WorkflowCode != "" {
		workflow, err := e.persistence.WorkflowRepository().GetByCode(ctx, req.WorkflowCode)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow: %w", err)
		}

		if workflow == nil {
			return &ListInstancesResponse{Instances: []*models.WorkflowInstance{}}, nil
		}

		opts.WorkflowID = workflow.ID
	}

	result, err := e.persistence.InstanceRepository().ListInstances(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	return &ListInstancesResponse{
		Instances:   result.Instances,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

func (e *Engine) fetchInstance(ctx context.Context, op, instanceID string) (*models.WorkflowInstance, error) {
	instance, err := e.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}

	if instance == nil {
		return nil, &persistence.InstanceError{Op: op, InstanceID: instanceID, Err: ErrInstanceNotFound}
	}

	return instance, nil
}

// afterCommit publishes events and notifies business handlers. Failures are
// logged; the committed state stands.
func (e *Engine) afterCommit(ctx context.Context, fx *effects) {
	e.record(fx)

	if e.publisher != nil {
		for _, event := range fx.events {
			key := eventKey(event)

			err := e.publisher.Publish(ctx, key, event)
			if err != nil {
				e.logger.ErrorContext(ctx, "Failed to publish event",
					"event_type", event.GetType(),
					"key", key,
					"error", err)
			}
		}
	}

	if e.callbacks == nil {
		return
	}

	for _, instance := range fx.submitted {
		err := e.callbacks.notifySubmitted(ctx, instance)
		if err != nil {
			e.metrics.CallbackFailed(instance.BusinessType)
			e.logger.ErrorContext(ctx, "Business submission callback failed",
				"instance_id", instance.ID,
				"business_type", instance.BusinessType,
				"business_id", instance.BusinessID,
				"error", err)
		}
	}

	for _, instance := range fx.completed {
		err := e.callbacks.notify(ctx, instance)
		if err != nil {
			e.metrics.CallbackFailed(instance.BusinessType)
			e.logger.ErrorContext(ctx, "Business callback failed",
				"instance_id", instance.ID,
				"business_type", instance.BusinessType,
				"business_id", instance.BusinessID,
				"status", instance.Status,
				"error", err)
		}
	}
}

func (e *Engine) record(fx *effects) {
	for _, instance := range fx.completed {
		e.metrics.InstanceCompleted(string(instance.Status))
	}

	for businessType, count := range fx.dispatched {
		e.metrics.TasksDispatched(businessType, count)
	}
}

func baseEvent(eventType events.EventType, instance *models.WorkflowInstance) events.BaseEvent {
	return events.NewBaseEvent(eventType, instance.ID, instance.WorkflowID, instance.BusinessType, instance.BusinessID)
}

// eventKey partitions events by instance so one instance's events stay ordered.
func eventKey(event eventbus.Event) string {
	if base, ok := baseOf(event); ok {
		return base.InstanceID
	}

	return string(event.GetType())
}

func baseOf(event eventbus.Event) (events.BaseEvent, bool) {
	switch ev := event.(type) {
	case events.InstanceStarted:
		return ev.BaseEvent, true
	case events.InstanceAdvanced:
		return ev.BaseEvent, true
	case events.InstanceApproved:
		return ev.BaseEvent, true
	case events.InstanceRejected:
		return ev.BaseEvent, true
	case events.InstanceCancelled:
		return ev.BaseEvent, true
	case events.TaskCreated:
		return ev.BaseEvent, true
	case events.TaskApproved:
		return ev.BaseEvent, true
	case events.TaskRejected:
		return ev.BaseEvent, true
	default:
		return events.BaseEvent{}, false
	}
}

func instanceNotRunning(op string, instance *models.WorkflowInstance) error {
	return &ServiceError{
		Op:      op,
		Code:    "INSTANCE_NOT_RUNNING",
		Message: fmt.Sprintf("instance %s is %s", instance.ID, instance.Status),
		Err:     ErrInstanceNotRunning,
	}
}

func validInstanceStatus(status models.InstanceStatus) bool {
	return status == models.InstanceStatusRunning || status.IsTerminal()
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cmsflow/approvals/pkg/models"
)

// BusinessHandler reacts to the final outcome of an instance started for its
// business type.
type BusinessHandler interface {
	OnApproved(ctx context.Context, businessID string) error
	OnRejected(ctx context.Context, businessID, reason string) error
}

// SubmissionHandler is implemented by business handlers that also track
// submission. OnSubmitted runs once an instance is started and awaiting review.
type SubmissionHandler interface {
	OnSubmitted(ctx context.Context, businessID string) error
}

// BusinessHandlerFuncs adapts plain functions to BusinessHandler. Nil
// functions are skipped.
type BusinessHandlerFuncs struct {
	Approved func(ctx context.Context, businessID string) error
	Rejected func(ctx context.Context, businessID, reason string) error
}

func (f BusinessHandlerFuncs) OnApproved(ctx context.Context, businessID string) error {
	if f.Approved == nil {
		return nil
	}

	return f.Approved(ctx, businessID)
}

func (f BusinessHandlerFuncs) OnRejected(ctx context.Context, businessID, reason string) error {
	if f.Rejected == nil {
		return nil
	}

	return f.Rejected(ctx, businessID, reason)
}

// Callbacks is the registry of business handlers keyed by business type.
type Callbacks struct {
	mu       sync.RWMutex
	handlers map[string]BusinessHandler
	logger   *slog.Logger
}

func NewCallbacks(logger *slog.Logger) *Callbacks {
	return &Callbacks{
		handlers: make(map[string]BusinessHandler),
		logger:   logger.With("module", "callbacks"),
	}
}

// Register binds a handler to a business type, replacing any previous one.
func (c *Callbacks) Register(businessType string, handler BusinessHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[businessType] = handler
}

// Handler returns the handler registered for a business type.
func (c *Callbacks) Handler(businessType string) (BusinessHandler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	handler, ok := c.handlers[businessType]

	return handler, ok
}

// notify delivers the outcome of a completed instance. Only APPROVED and
// REJECTED instances reach a handler.
func (c *Callbacks) notify(ctx context.Context, instance *models.WorkflowInstance) error {
	handler, ok := c.Handler(instance.BusinessType)
	if !ok {
		c.logger.DebugContext(ctx, "No business handler registered",
			"business_type", instance.BusinessType,
			"instance_id", instance.ID)

		return nil
	}

	var err error

	switch instance.Status {
	case models.InstanceStatusApproved:
		err = handler.OnApproved(ctx, instance.BusinessID)
	case models.InstanceStatusRejected:
		err = handler.OnRejected(ctx, instance.BusinessID, instance.CompletionNote)
	default:
		return nil
	}

	if err != nil {
		return fmt.Errorf("business handler for %s failed on %s: %w", instance.BusinessType, instance.Status, err)
	}

	return nil
}

// notifySubmitted tells the business handler that an instance is awaiting
// review. Handlers without OnSubmitted are skipped.
func (c *Callbacks) notifySubmitted(ctx context.Context, instance *models.WorkflowInstance) error {
	handler, ok := c.Handler(instance.BusinessType)
	if !ok {
		return nil
	}

	submission, ok := handler.(SubmissionHandler)
	if !ok {
		return nil
	}

	err := submission.OnSubmitted(ctx, instance.BusinessID)
	if err != nil {
		return fmt.Errorf("business handler for %s failed on submission: %w", instance.BusinessType, err)
	}

	return nil
}

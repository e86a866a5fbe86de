// Package content reacts to approval outcomes for CMS content items.
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cmsflow/approvals/pkg/services"
)

// BusinessType is the business type content items are submitted under.
const BusinessType = "CONTENT"

// Content item statuses.
const (
	StatusDraft     = "DRAFT"
	StatusPending   = "PENDING"
	StatusPublished = "PUBLISHED"
)

var (
	ErrContentNotFound  = errors.New("content not found")
	ErrInvalidContentID = errors.New("invalid content id")
)

// Handler marks submitted content pending, publishes approved content and
// returns rejected content to draft.
type Handler struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(db *sql.DB, logger *slog.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: logger.With("module", "content"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register binds the handler to the CONTENT business type.
func (h *Handler) Register(callbacks *services.Callbacks) {
	callbacks.Register(BusinessType, h)
}

// OnApproved publishes the content item. The first publication time is kept
// when the item was published before.
func (h *Handler) OnApproved(ctx context.Context, businessID string) error {
	id, err := parseID(businessID)
	if err != nil {
		return err
	}

	query := `
		UPDATE contents SET
			status = $2
		  , published_at = COALESCE(published_at, $3)
		  , review_note = NULL
		  , updated_at = $3
		WHERE id = $1 AND deleted = FALSE
	`

	err = h.exec(ctx, query, id, StatusPublished, h.now())
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "Content published", "content_id", id)

	return nil
}

// OnRejected sends the content item back to draft with the reviewer's reason.
func (h *Handler) OnRejected(ctx context.Context, businessID, reason string) error {
	id, err := parseID(businessID)
	if err != nil {
		return err
	}

	query := `
		UPDATE contents SET
			status = $2
		  , review_note = $3
		  , updated_at = $4
		WHERE id = $1 AND deleted = FALSE
	`

	err = h.exec(ctx, query, id, StatusDraft, reason, h.now())
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "Content returned to draft", "content_id", id, "reason", reason)

	return nil
}

// OnSubmitted flags a content item as awaiting review once its instance has
// started.
func (h *Handler) OnSubmitted(ctx context.Context, businessID string) error {
	id, err := parseID(businessID)
	if err != nil {
		return err
	}

	query := `
		UPDATE contents SET
			status = $2
		  , updated_at = $3
		WHERE id = $1 AND deleted = FALSE
	`

	return h.exec(ctx, query, id, StatusPending, h.now())
}

func (h *Handler) exec(ctx context.Context, query string, id int64, args ...any) error {
	result, err := h.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update content %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("content %d: %w", id, ErrContentNotFound)
	}

	return nil
}

func parseID(businessID string) (int64, error) {
	id, err := strconv.ParseInt(businessID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q", ErrInvalidContentID, businessID)
	}

	return id, nil
}

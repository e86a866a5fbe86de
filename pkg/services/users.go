package services

import "context"

// UserDirectory resolves user ids to display names.
type UserDirectory interface {
	// ResolveUserName returns the display name of a user, or an empty string
	// when the user is unknown.
	ResolveUserName(ctx context.Context, userID string) (string, error)
}

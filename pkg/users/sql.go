package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLDirectory reads display names from the CMS users table.
type SQLDirectory struct {
	db *sql.DB
}

func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// ResolveUserName returns the display name of a user, falling back to the
// username when no display name is set. Unknown users resolve to "".
func (d *SQLDirectory) ResolveUserName(ctx context.Context, userID string) (string, error) {
	query := `
		SELECT COALESCE(NULLIF(display_name, ''), username)
		FROM users
		WHERE id = $1
	`

	var name string

	err := d.db.QueryRowContext(ctx, query, userID).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}

		return "", fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}

	return name, nil
}

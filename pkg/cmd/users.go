package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cmsflow/approvals/pkg/services"
	"github.com/cmsflow/approvals/pkg/users"
)

var ErrUserTableUnavailable = errors.New("sql user directory needs a postgres database")

// NewUserDirectory builds the directory named by kind: "sql" reads the users
// table of db, "static:id=Name,..." uses a fixed list. A non-empty redisURL
// puts a Redis cache in front. The returned close function releases the cache
// connection.
//
// nolint:ireturn // callers only need the interface
func NewUserDirectory(
	ctx context.Context,
	kind string,
	db *sql.DB,
	redisURL string,
	logger *slog.Logger,
) (services.UserDirectory, func() error, error) {
	var directory services.UserDirectory

	switch {
	case kind == "sql":
		if db == nil {
			return nil, nil, ErrUserTableUnavailable
		}

		directory = users.NewSQLDirectory(db)
	case kind == "" || kind == "static" || strings.HasPrefix(kind, "static:"):
		static, err := users.ParseStatic(strings.TrimPrefix(strings.TrimPrefix(kind, "static"), ":"))
		if err != nil {
			return nil, nil, err
		}

		directory = static
	default:
		return nil, nil, fmt.Errorf("unsupported user directory: %s", kind)
	}

	if redisURL == "" {
		return directory, func() error { return nil }, nil
	}

	client, err := users.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}

	return users.NewCachedDirectory(directory, client, users.DefaultCacheTTL, logger), client.Close, nil
}

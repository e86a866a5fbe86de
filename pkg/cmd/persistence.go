package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cmsflow/approvals/pkg/persistence"
	"github.com/cmsflow/approvals/pkg/persistence/file"
	"github.com/cmsflow/approvals/pkg/persistence/postgresql"
)

// NewPersistence opens the backend named by the URL scheme: postgres:// or
// postgresql:// for PostgreSQL, file://<dir> for JSON documents.
//
// nolint:ireturn // callers only need the interface
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return nil, fmt.Errorf("database url %q has no scheme", databaseURL)
	}

	switch provider {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	case "file":
		if rest == "" {
			return nil, fmt.Errorf("database url %q has no directory", databaseURL)
		}

		return file.NewPersistence(rest), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider: %s", provider)
	}
}

// SQLDB returns the connection pool of SQL backed persistence.
func SQLDB(p persistence.Persistence) (*sql.DB, bool) {
	withDB, ok := p.(interface{ DB() *sql.DB })
	if !ok {
		return nil, false
	}

	return withDB.DB(), true
}

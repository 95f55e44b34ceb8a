// Package cmd holds shared construction helpers for the command line
// entrypoints.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/expflow/expflow/pkg/persistence"
	"github.com/expflow/expflow/pkg/persistence/file"
	"github.com/expflow/expflow/pkg/persistence/postgresql"
)

// NewPersistence selects a persistence backend from the database URL scheme:
// postgres:// and postgresql:// use PostgreSQL, anything else is treated as
// a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"),
		strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL)
	}
}

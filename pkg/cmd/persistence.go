// Package cmd provides shared construction helpers for the binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dripflow/dripflow/pkg/persistence"
	"github.com/dripflow/dripflow/pkg/persistence/file"
	"github.com/dripflow/dripflow/pkg/persistence/postgresql"
)

// NewPersistence selects a storage backend from the database URL scheme:
// postgres:// for PostgreSQL, anything else is treated as a file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return p
	}

	return file.NewPersistence(databaseURL)
}

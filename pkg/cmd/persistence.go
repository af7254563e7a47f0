package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/recforge/recforge/pkg/persistence"
	"github.com/recforge/recforge/pkg/persistence/file"
	"github.com/recforge/recforge/pkg/persistence/postgresql"
)

// NewPersistence selects the execution store from the database URL scheme:
// postgres for postgres:// URLs, the file store otherwise.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return persist
	default:
		return file.NewPersistence(databaseURL)
	}
}

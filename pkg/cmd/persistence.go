package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/weftworks/weft/pkg/persistence"
	"github.com/weftworks/weft/pkg/persistence/file"
	"github.com/weftworks/weft/pkg/persistence/postgresql"
	"github.com/weftworks/weft/pkg/persistence/redis"
)

// NewPersistence builds the persistence layer from a database URL. The scheme
// selects the backend: postgres:// and postgresql:// for PostgreSQL,
// redis:// for Redis, anything else (including bare paths and file://) for
// the file backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch provider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgresql persistence: %w", err)
		}

		return store, nil
	case "redis":
		store, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis persistence: %w", err)
		}

		return store, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func provider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}

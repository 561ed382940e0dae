package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/flowgate/flowgate/pkg/persistence"
	"github.com/flowgate/flowgate/pkg/persistence/file"
	"github.com/flowgate/flowgate/pkg/persistence/memory"
	"github.com/flowgate/flowgate/pkg/persistence/postgresql"
	"github.com/flowgate/flowgate/pkg/persistence/redis"
)

// NewPersistence selects a store backend from the database URL scheme.
// Unknown schemes fall back to the file backend, treating the URL as a
// directory path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "redis", "rediss":
		return redis.NewPersistence(databaseURL, logger)
	case "memory":
		return memory.NewPersistence(), nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}

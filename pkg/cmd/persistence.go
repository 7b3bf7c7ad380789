// Package cmd provides common initialization functions for the command-line
// binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledgerops/approvia/pkg/persistence"
	"github.com/ledgerops/approvia/pkg/persistence/memory"
	"github.com/ledgerops/approvia/pkg/persistence/postgresql"
)

// NewPersistence creates a persistence layer from the database URL scheme.
// An empty URL or the memory:// scheme selects the in-memory store, meant
// for local development only.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseScheme(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "memory", "":
		logger.Warn("Using in-memory persistence, data will not survive restarts")

		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database URL %q", databaseURL)
	}
}

func parseScheme(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return scheme
}

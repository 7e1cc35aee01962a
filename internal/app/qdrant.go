// Package app wires application components and startup helpers.
package app

import (
	"context"
	"log/slog"

	qdrantcli "github.com/fairyhunter13/ai-deep-researcher/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/ai-deep-researcher/internal/config"
)

// EnsureResearchCollection creates the research document collection when it
// does not exist yet. Failure is logged, not fatal: the service can come up
// while Qdrant is still starting and readiness reports the gap.
func EnsureResearchCollection(ctx context.Context, cfg config.Config, qcli *qdrantcli.Client) {
	if qcli == nil {
		return
	}
	if err := qcli.EnsureCollection(ctx, cfg.QdrantCollection, 1536, "Cosine"); err != nil {
		slog.Warn("qdrant ensure collection failed",
			slog.String("collection", cfg.QdrantCollection), slog.Any("error", err))
	}
}

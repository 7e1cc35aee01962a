// Command vecseed upserts reference documents from YAML files into a
// session's vector collection. Intended for development and e2e runs.
//
// Usage:
//
//	vecseed -session sess-1 -file configs/seed/solar_sails.yaml
//	vecseed -session sess-1 -dir configs/seed
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/ai/openrouter"
	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/observability"
	qdrantcli "github.com/fairyhunter13/ai-deep-researcher/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/ai-deep-researcher/internal/app"
	"github.com/fairyhunter13/ai-deep-researcher/internal/config"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/internal/vecseed"
)

func main() {
	sessionID := flag.String("session", "", "session id to seed documents into (required)")
	file := flag.String("file", "", "single YAML seed file")
	dir := flag.String("dir", "", "directory of YAML seed files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	if *sessionID == "" || (*file == "" && *dir == "") {
		flag.Usage()
		os.Exit(2)
	}

	var embedder domain.AIClient = openrouter.NewOpenRouter(cfg, nil)
	if cfg.OpenAIAPIKey != "" {
		embedder = openrouter.NewOpenAI(cfg, nil)
	}
	qcli := qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)

	ctx := context.Background()
	app.EnsureResearchCollection(ctx, cfg, qcli)
	store := qdrantcli.NewStore(qcli, embedder, cfg.QdrantCollection)

	var total int
	if *file != "" {
		total, err = vecseed.SeedFile(ctx, store, *sessionID, *file)
	} else {
		total, err = vecseed.SeedDir(ctx, store, *sessionID, *dir)
	}
	if err != nil {
		slog.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("seeding complete",
		slog.String("session_id", *sessionID),
		slog.Int("documents", total))
}

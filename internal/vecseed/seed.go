// Package vecseed loads reference documents from YAML files and upserts
// them into a session's vector collection.
//
// It exists for development and end-to-end runs: the vector_search tool can
// then retrieve known material without first scraping the live web.
package vecseed

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

type seedYAML struct {
	Documents []seedDocument `yaml:"documents"`
}

type seedDocument struct {
	Title   string `yaml:"title"`
	Source  string `yaml:"source"`
	Content string `yaml:"content"`
}

// SeedFile ingests a single YAML seed file into the session's collection and
// returns the number of documents upserted.
func SeedFile(ctx domain.Context, store domain.VectorStore, sessionID, path string) (int, error) {
	// Mitigate file inclusion issues by constraining to current working directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return 0, err
	}
	abs = filepath.Clean(abs)
	wd = filepath.Clean(wd)
	if os.Getenv("VECSEED_ALLOW_ABSPATHS") != "1" {
		if !strings.HasPrefix(abs, wd+string(os.PathSeparator)) && abs != wd {
			return 0, fmt.Errorf("disallowed path: %s", abs)
		}
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("seed file not found: %s", path)
		}
		return 0, err
	}
	docs, err := parseSeed(b, filepath.Base(abs))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(docs) == 0 {
		return 0, fmt.Errorf("no documents to seed in %s", path)
	}
	if err := store.UpsertDocuments(ctx, sessionID, docs); err != nil {
		return 0, fmt.Errorf("op=vecseed.SeedFile: %w", err)
	}
	slog.Info("seed file ingested",
		slog.String("path", path),
		slog.String("session_id", sessionID),
		slog.Int("documents", len(docs)))
	return len(docs), nil
}

// SeedDir ingests every .yaml/.yml file of dir, returning the total number
// of documents upserted.
func SeedDir(ctx domain.Context, store domain.VectorStore, sessionID, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("op=vecseed.SeedDir: %w", err)
	}
	total := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		n, err := SeedFile(ctx, store, sessionID, filepath.Join(dir, e.Name()))
		if err != nil {
			return total, err
		}
		total += n
	}
	if total == 0 {
		return 0, fmt.Errorf("no seed documents found in %s", dir)
	}
	return total, nil
}

func parseSeed(b []byte, filename string) ([]domain.Document, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	var doc seedYAML
	if err := yaml.Unmarshal(b, &doc); err == nil && len(doc.Documents) > 0 {
		out := make([]domain.Document, 0, len(doc.Documents))
		for i, d := range doc.Documents {
			content := strings.TrimSpace(d.Content)
			if content == "" {
				continue
			}
			source := strings.TrimSpace(d.Source)
			if source == "" {
				source = fmt.Sprintf("seed://%s#%d", filename, i)
			}
			out = append(out, domain.Document{
				PageContent: content,
				Metadata: domain.DocumentMetadata{
					Source:           source,
					Title:            strings.TrimSpace(d.Title),
					ContentType:      "text/plain",
					ExtractionMethod: "seed",
					ProcessedAt:      now,
				},
			})
		}
		return out, nil
	}
	// Fallback: a plain list of strings.
	var ls []string
	if err := yaml.Unmarshal(b, &ls); err != nil {
		return nil, fmt.Errorf("yaml parse: %w", err)
	}
	out := make([]domain.Document, 0, len(ls))
	for i, s := range ls {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, domain.Document{
			PageContent: s,
			Metadata: domain.DocumentMetadata{
				Source:           fmt.Sprintf("seed://%s#%d", filename, i),
				Title:            fmt.Sprintf("%s #%d", filename, i),
				ContentType:      "text/plain",
				ExtractionMethod: "seed",
				ProcessedAt:      now,
			},
		})
	}
	return out, nil
}

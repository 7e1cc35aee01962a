package vecseed_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain/mocks"
	"github.com/fairyhunter13/ai-deep-researcher/internal/vecseed"
)

func writeSeed(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("VECSEED_ALLOW_ABSPATHS", "1")
	return path
}

func TestSeedFile_Documents(t *testing.T) {
	path := writeSeed(t, "refs.yaml", `
documents:
  - title: Solar Sail Basics
    source: https://example.com/sails
    content: Photon pressure propels thin reflective membranes.
  - title: Empty entry is skipped
    content: "   "
  - content: Sourceless entries get a synthetic seed source.
`)
	store := mocks.NewMockVectorStore(t)
	store.On("UpsertDocuments", mock.Anything, "sess-1", mock.MatchedBy(func(docs []domain.Document) bool {
		return len(docs) == 2 &&
			docs[0].Metadata.Source == "https://example.com/sails" &&
			docs[0].Metadata.Title == "Solar Sail Basics" &&
			docs[1].Metadata.Source == "seed://refs.yaml#2"
	})).Return(nil).Once()

	n, err := vecseed.SeedFile(context.Background(), store, "sess-1", path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSeedFile_PlainStringList(t *testing.T) {
	path := writeSeed(t, "plain.yaml", "- first fact\n- second fact\n")
	store := mocks.NewMockVectorStore(t)
	store.On("UpsertDocuments", mock.Anything, "sess-1", mock.MatchedBy(func(docs []domain.Document) bool {
		return len(docs) == 2 && docs[0].PageContent == "first fact"
	})).Return(nil).Once()

	n, err := vecseed.SeedFile(context.Background(), store, "sess-1", path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSeedFile_Missing(t *testing.T) {
	t.Setenv("VECSEED_ALLOW_ABSPATHS", "1")
	store := mocks.NewMockVectorStore(t)
	_, err := vecseed.SeedFile(context.Background(), store, "sess-1", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed file not found")
}

func TestSeedFile_DisallowedPathOutsideWorkdir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- x\n"), 0o600))

	store := mocks.NewMockVectorStore(t)
	_, err := vecseed.SeedFile(context.Background(), store, "sess-1", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disallowed path")
}

func TestSeedFile_Empty(t *testing.T) {
	path := writeSeed(t, "empty.yaml", "documents: []\n")
	store := mocks.NewMockVectorStore(t)
	_, err := vecseed.SeedFile(context.Background(), store, "sess-1", path)
	require.Error(t, err)
}

func TestSeedDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("- one\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("- two\n- three\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))
	t.Setenv("VECSEED_ALLOW_ABSPATHS", "1")

	store := mocks.NewMockVectorStore(t)
	store.On("UpsertDocuments", mock.Anything, "sess-1", mock.Anything).Return(nil).Twice()

	n, err := vecseed.SeedDir(context.Background(), store, "sess-1", dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

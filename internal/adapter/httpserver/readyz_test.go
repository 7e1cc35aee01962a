package httpserver_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/httpserver"
)

func TestReadyz_AllHealthy(t *testing.T) {
	ok := func(context.Context) error { return nil }
	srv := &httpserver.Server{DBCheck: ok, RedisCheck: ok, QdrantCheck: ok}

	rec := httptest.NewRecorder()
	srv.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"qdrant"`)
}

func TestReadyz_DependencyDown(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }
	srv := &httpserver.Server{DBCheck: ok, RedisCheck: down, QdrantCheck: ok}

	rec := httptest.NewRecorder()
	srv.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestReadyz_SkipsUnconfiguredChecks(t *testing.T) {
	srv := &httpserver.Server{DBCheck: func(context.Context) error { return nil }}

	rec := httptest.NewRecorder()
	srv.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "redis")
}

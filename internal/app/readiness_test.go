package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-deep-researcher/internal/app"
	"github.com/fairyhunter13/ai-deep-researcher/internal/config"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type redisResult struct{ err error }

func (r redisResult) Err() error { return r.err }

type redisStub struct{ err error }

func (r redisStub) Ping(context.Context) app.RedisPingResult { return redisResult{err: r.err} }

func TestBuildReadinessChecks_DBAndRedis(t *testing.T) {
	db, redis, _ := app.BuildReadinessChecks(config.Config{},
		pingerFunc(func(context.Context) error { return nil }),
		redisStub{})
	require.NoError(t, db(context.Background()))
	require.NoError(t, redis(context.Background()))

	db, redis, _ = app.BuildReadinessChecks(config.Config{},
		pingerFunc(func(context.Context) error { return errors.New("pg down") }),
		redisStub{err: errors.New("redis down")})
	assert.EqualError(t, db(context.Background()), "pg down")
	assert.EqualError(t, redis(context.Background()), "redis down")
}

func TestBuildReadinessChecks_NilDependencies(t *testing.T) {
	db, redis, _ := app.BuildReadinessChecks(config.Config{}, nil, nil)
	assert.Error(t, db(context.Background()))
	assert.Error(t, redis(context.Background()))
}

func TestBuildReadinessChecks_Qdrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, _, qdrant := app.BuildReadinessChecks(
		config.Config{QdrantURL: srv.URL, QdrantAPIKey: "secret"}, nil, nil)
	require.NoError(t, qdrant(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	_, _, qdrant = app.BuildReadinessChecks(config.Config{QdrantURL: down.URL}, nil, nil)
	assert.EqualError(t, qdrant(context.Background()), "qdrant status 500")
}

package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspace-auth/internal/auth"
	"workspace-auth/internal/config"
	"workspace-auth/internal/observability"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func newTestRouter(t *testing.T, ping error) http.Handler {
	t.Helper()

	hasher, err := auth.NewHasher(config.Argon2{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	cfg := config.Config{JWTSecret: "0123456789abcdef0123456789abcdef"}
	logger := observability.NewLoggerTo(&bytes.Buffer{})
	service := auth.NewService(nil, hasher, auth.NewTokenCodec(cfg), logger)

	return NewRouter(logger, service, fakePinger{err: ping})
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	newTestRouter(t, errors.New("down")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestRouter_ProtectedRoutesRequireBearer(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/auth/logout-all"},
		{http.MethodGet, "/auth/me"},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(route.method, route.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(observability.RequestIDHeader))
}

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMemoryRuntime(t *testing.T) *Runtime {
	t.Helper()

	t.Setenv("APP_ENV", "development")
	t.Setenv("STATE_BACKEND", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_ACCESS_SECRET", "access-secret-for-tests")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret-for-tests")
	t.Setenv("ADMIN_EMAIL", "admin@herbal.example")
	t.Setenv("ADMIN_PASSWORD", "admin-password")
	t.Setenv("CRON_SECRET", "cron-secret")
	t.Setenv("LOG_LEVEL", "error")

	runtime, err := Build(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = runtime.Close() })
	return runtime
}

func TestBuild_MemoryBackendServesRoutes(t *testing.T) {
	runtime := buildMemoryRuntime(t)
	assert.Equal(t, ":8080", runtime.Addr)

	rec := httptest.NewRecorder()
	runtime.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	runtime.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Values("Set-Cookie")[0], "hs_session=")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal/maintenance/cleanup", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	runtime.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuild_AdminCanLogin(t *testing.T) {
	runtime := buildMemoryRuntime(t)

	body, err := json.Marshal(map[string]any{
		"email":    "admin@herbal.example",
		"password": "admin-password",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("User-Agent", "bootstrap-test")
	runtime.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var session map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	assert.Equal(t, "admin", session["user"].(map[string]any)["role"])

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+session["access_token"].(string))
	runtime.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	runtime.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	metrics, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(metrics), `login_attempts_total{outcome="success"}`))
}

func TestBuild_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")

	_, err := Build(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ACCESS_SECRET")
}

func TestHealthHandler_ReportsFailingChecks(t *testing.T) {
	handler := healthHandler(map[string]healthCheck{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

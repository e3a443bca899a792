package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"herbal-store/internal/app"
	"herbal-store/internal/observability"
)

func TestLazyRuntime_RetriesFailedBootstrap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	builds := 0
	l := &lazyRuntime{
		logger: observability.NewLoggerWithCore(core),
		build: func() (*app.Runtime, error) {
			builds++
			if builds == 1 {
				return nil, errors.New("dial database: connection refused")
			}
			return &app.Runtime{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})}, nil
		},
	}

	rec := httptest.NewRecorder()
	l.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"application bootstrap failed"}`, rec.Body.String())

	failures := logs.FilterMessage("bootstrap_failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "dial database: connection refused", failures[0].ContextMap()["error"])

	for i := 0; i < 2; i++ {
		rec = httptest.NewRecorder()
		l.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}
	assert.Equal(t, 2, builds, "a built runtime is reused")
}

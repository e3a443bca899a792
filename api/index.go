package api

import (
	"encoding/json"
	"net/http"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"herbal-store/internal/app"
	"herbal-store/internal/observability"
)

// lazyRuntime builds the application on first use and keeps it while the
// instance stays warm. A failed build is not cached: the next invocation
// tries again, so a transient database outage does not poison the instance.
type lazyRuntime struct {
	mu      sync.Mutex
	build   func() (*app.Runtime, error)
	logger  *observability.Logger
	runtime *app.Runtime
}

func (l *lazyRuntime) load() (*app.Runtime, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runtime != nil {
		return l.runtime, nil
	}

	runtime, err := l.build()
	if err != nil {
		return nil, err
	}
	l.runtime = runtime
	return runtime, nil
}

func (l *lazyRuntime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runtime, err := l.load()
	if err != nil {
		l.logger.Error("bootstrap_failed", map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"error":  err.Error(),
		})
		observability.CaptureError(err, map[string]any{"stage": "bootstrap"})

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "application bootstrap failed"})
		return
	}

	runtime.Handler.ServeHTTP(w, r)
}

var entry = &lazyRuntime{
	build:  func() (*app.Runtime, error) { return app.Build(app.Options{LoadDotEnv: false}) },
	logger: observability.NewLogger("error"),
}

// Handler is the serverless entry point; migrations follow
// RUN_MIGRATIONS_ON_STARTUP.
func Handler(w http.ResponseWriter, r *http.Request) {
	entry.ServeHTTP(w, r)
}

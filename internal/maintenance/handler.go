package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"herbal-store/internal/clientstate"
	"herbal-store/internal/observability"
)

// CleanupHandler is the cron entry point that purges stale client state from
// backends that cannot expire entries on their own.
type CleanupHandler struct {
	sweeper    clientstate.Sweeper
	logger     *observability.Logger
	cronSecret string
	retention  time.Duration
	batchSize  int
	now        func() time.Time
}

type cleanupResult struct {
	Deleted     int64     `json:"deleted"`
	StaleBefore time.Time `json:"stale_before"`
}

func NewCleanupHandler(
	sweeper clientstate.Sweeper,
	logger *observability.Logger,
	cronSecret string,
	retention time.Duration,
	batchSize int,
) *CleanupHandler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &CleanupHandler{
		sweeper:    sweeper,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		retention:  retention,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

func (h *CleanupHandler) WithClock(now func() time.Time) *CleanupHandler {
	h.now = now
	return h
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" || h.sweeper == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result := cleanupResult{StaleBefore: h.now().UTC().Add(-h.retention)}
	deleted, err := h.sweeper.Sweep(r.Context(), result.StaleBefore, h.batchSize)
	if err != nil {
		h.logger.Error("client_state_cleanup_failed", map[string]any{"error": err.Error()})
		observability.CaptureError(err, map[string]any{"route": "maintenance_cleanup"})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}
	result.Deleted = deleted

	h.logger.Info("client_state_cleanup_completed", map[string]any{
		"deleted":      deleted,
		"stale_before": result.StaleBefore,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

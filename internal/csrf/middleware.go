package csrf

import (
	"encoding/json"
	"net/http"

	"herbal-store/internal/observability"
)

// Middleware rejects state-mutating requests whose X-CSRF-Token header does
// not match the token stored for the caller's session.
func (s *Service) Middleware(sessionID func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}

		session, candidate := sessionID(r), r.Header.Get(HeaderName)
		if !s.Validate(r.Context(), session, candidate) {
			observability.CSRFRejections.Inc()
			s.logger.Warn("csrf_rejected", map[string]any{
				"request_id":  observability.RequestID(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"ip":          observability.ClientIP(r),
				"has_session": session != "",
				"has_token":   candidate != "",
			})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid csrf token"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

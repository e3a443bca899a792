package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"herbal-store/internal/observability"
	"herbal-store/internal/tokens"
)

type payloadKey struct{}

const RefreshHintHeader = "X-Token-Refresh"

// Middleware admits requests carrying a valid access token and stores its
// payload in the request context.
func Middleware(manager *tokens.Manager, refreshThresholdMinutes int, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		token, ok := tokens.ExtractFromHeader(header)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		payload, err := manager.VerifyAccess(token)
		observability.TokenVerifications.WithLabelValues(string(tokens.KindAccess), verifyResult(err)).Inc()
		if err != nil {
			if errors.Is(err, tokens.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "token has expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		if manager.ShouldRefresh(token, refreshThresholdMinutes) {
			w.Header().Set(RefreshHintHeader, "true")
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), payloadKey{}, payload)))
	})
}

func PayloadFromContext(ctx context.Context) (tokens.Payload, bool) {
	payload, ok := ctx.Value(payloadKey{}).(tokens.Payload)
	return payload, ok
}

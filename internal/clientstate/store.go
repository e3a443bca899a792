// Package clientstate holds the small per-browser and per-session values a
// storefront client would otherwise keep in local or session storage: the
// login rate-limit blob, the remembered email and the CSRF token.
//
// Writes to different keys are not transactional. Two tabs of one browser
// can race on the same key; callers accept last-writer-wins.
package clientstate

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("client state not found")

const (
	KeyRateLimit  = "rate_limit"
	KeySavedEmail = "saved_email"
	KeyCSRFToken  = "csrf_token"
)

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key; a zero ttl keeps it until deleted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Sweeper is implemented by backends that do not expire entries on their own.
type Sweeper interface {
	Sweep(ctx context.Context, staleBefore time.Time, batchSize int) (int64, error)
}

// BrowserKey scopes key to a browser profile (local storage).
func BrowserKey(browserID, key string) string {
	return "browser:" + browserID + ":" + key
}

// SessionKey scopes key to a single session (session storage).
func SessionKey(sessionID, key string) string {
	return "session:" + sessionID + ":" + key
}

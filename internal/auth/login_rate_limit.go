package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"herbal-store/internal/observability"
)

// LoginRateLimiter caps login requests per client IP over a sliding window.
// It sits in front of the per-browser lockout and catches callers that
// discard their browser cookie between attempts.
type LoginRateLimiter struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	hitsByIP  map[string][]time.Time
	maxMemory int
	now       func() time.Time
}

func NewLoginRateLimiter(maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		maxHits:   maxHits,
		window:    window,
		hitsByIP:  make(map[string][]time.Time),
		maxMemory: 5000,
		now:       time.Now,
	}
}

func (l *LoginRateLimiter) WithClock(now func() time.Time) *LoginRateLimiter {
	l.now = now
	return l
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(observability.ClientIP(r), l.now().UTC())
		if !allowed {
			observability.LoginAttempts.WithLabelValues("throttled").Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int((retryAfter+time.Second-1)/time.Second)))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *LoginRateLimiter) allow(ip string, now time.Time) (bool, time.Duration) {
	threshold := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.hitsByIP[ip][:0:0]
	for _, hit := range l.hitsByIP[ip] {
		if hit.After(threshold) {
			recent = append(recent, hit)
		}
	}

	if len(recent) >= l.maxHits {
		l.hitsByIP[ip] = recent
		retryAfter := recent[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}

	l.hitsByIP[ip] = append(recent, now)

	if len(l.hitsByIP) > l.maxMemory {
		for key, hits := range l.hitsByIP {
			if len(hits) == 0 || !hits[len(hits)-1].After(threshold) {
				delete(l.hitsByIP, key)
			}
		}
	}

	return true, 0
}

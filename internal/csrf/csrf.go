// Package csrf issues and checks the anti-forgery token bound to a session.
// At most one token is current per session; a new session replaces it.
package csrf

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"herbal-store/internal/clientstate"
	"herbal-store/internal/observability"
)

const (
	tokenBytes = 32
	HeaderName = "X-CSRF-Token"
)

// RandomSource is satisfied by crypto/rand.Reader.
type RandomSource interface {
	Read(p []byte) (int, error)
}

type Service struct {
	random RandomSource
	kv     clientstate.Store
	ttl    time.Duration
	logger *observability.Logger
}

func NewService(kv clientstate.Store, random RandomSource) *Service {
	if random == nil {
		random = rand.Reader
	}
	return &Service{random: random, kv: kv, logger: observability.NewNopLogger()}
}

// WithTTL bounds how long a stored token lives; zero keeps it for the session.
func (s *Service) WithTTL(ttl time.Duration) *Service {
	s.ttl = ttl
	return s
}

// WithLogger receives csrf_rejected events from Middleware.
func (s *Service) WithLogger(logger *observability.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Service) Generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("read csrf entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Service) Set(ctx context.Context, sessionID, token string) error {
	if err := s.kv.Set(ctx, clientstate.SessionKey(sessionID, clientstate.KeyCSRFToken), token, s.ttl); err != nil {
		return fmt.Errorf("store csrf token: %w", err)
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.kv.Delete(ctx, clientstate.SessionKey(sessionID, clientstate.KeyCSRFToken)); err != nil {
		return fmt.Errorf("clear csrf token: %w", err)
	}
	return nil
}

// Issue generates a token and makes it current for the session.
func (s *Service) Issue(ctx context.Context, sessionID string) (string, error) {
	token, err := s.Generate()
	if err != nil {
		return "", err
	}
	if err := s.Set(ctx, sessionID, token); err != nil {
		return "", err
	}
	return token, nil
}

// Validate compares candidate with the stored token. It never consumes the
// stored value.
func (s *Service) Validate(ctx context.Context, sessionID, candidate string) bool {
	if sessionID == "" || candidate == "" {
		return false
	}

	stored, err := s.kv.Get(ctx, clientstate.SessionKey(sessionID, clientstate.KeyCSRFToken))
	if err != nil {
		return false
	}

	return hmac.Equal([]byte(stored), []byte(candidate))
}

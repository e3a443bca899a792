package auth

import (
	"errors"
	"fmt"
	"time"

	"herbal-store/internal/fingerprint"
	"herbal-store/internal/lockout"
	"herbal-store/internal/tokens"
)

type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// MinPasswordLength is the shortest password worth checking; shorter ones
// are rejected before they can count against the lockout.
const MinPasswordLength = 6

type LoginInput struct {
	BrowserID  string
	ClientIP   string
	Email      string
	Password   string
	RememberMe bool
	Device     fingerprint.Attributes
}

type Session struct {
	tokens.Pair
	SessionID string   `json:"session_id"`
	CSRFToken string   `json:"csrf_token"`
	User      Identity `json:"user"`
}

type LockoutStatus struct {
	Status            lockout.Status `json:"status"`
	Attempts          int            `json:"attempts"`
	AttemptsRemaining int            `json:"attempts_remaining"`
	Locked            bool           `json:"locked"`
	LockedUntil       *time.Time     `json:"locked_until,omitempty"`
	TimeRemaining     string         `json:"time_remaining,omitempty"`
}

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUnknownIdentity     = errors.New("unknown identity")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

type ErrLoginLocked struct {
	Until     time.Time
	Remaining time.Duration
}

func (e ErrLoginLocked) Error() string {
	return fmt.Sprintf("account locked, try again in %s", lockout.FormatRemaining(e.Remaining))
}

// RateLimitWarning accompanies a rejected login that has not yet tripped
// the lock. It unwraps to ErrInvalidCredentials.
type RateLimitWarning struct {
	AttemptsRemaining int
}

func (w RateLimitWarning) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempts remaining", w.AttemptsRemaining)
}

func (w RateLimitWarning) Unwrap() error {
	return ErrInvalidCredentials
}

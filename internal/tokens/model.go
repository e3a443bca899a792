package tokens

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const TokenTypeBearer = "Bearer"

type Payload struct {
	Subject   string `json:"sub"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	ID        string `json:"jti"`
	Device    string `json:"device"`
	SessionID string `json:"sessionId"`
	Type      Kind   `json:"type"`
}

type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Issued is a freshly signed token and its lifetime in seconds.
type Issued struct {
	Token     string
	ExpiresIn int64
}

type AccessClaims struct {
	Subject   string
	Email     string
	Role      string
	Device    string
	SessionID string
}

type RefreshClaims struct {
	Subject   string
	SessionID string
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

var (
	ErrInvalidFormat    = errors.New("invalid token format")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrTokenExpired     = errors.New("token has expired")
)

// IssuanceError hides the underlying cause from Error so that signing
// details never reach a client; Unwrap exposes it for logging.
type IssuanceError struct {
	Kind  Kind
	cause error
}

func (e *IssuanceError) Error() string {
	return fmt.Sprintf("failed to generate %s token", e.Kind)
}

func (e *IssuanceError) Unwrap() error {
	return e.cause
}

func issuanceFailed(kind Kind, cause error) error {
	return &IssuanceError{Kind: kind, cause: cause}
}

package tokens

import (
	"crypto/hmac"
	"encoding/json"
	"strings"
	"time"
)

// Verify checks, in order, the segment count, the signature, the token kind
// and the expiry. The returned error is always one of the Err* sentinels.
func Verify(token, secret string, expected Kind, now time.Time) (Payload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Payload{}, ErrInvalidFormat
	}

	want, err := Sign(parts[0]+"."+parts[1], secret)
	if err != nil || !hmac.Equal([]byte(want), []byte(parts[2])) {
		return Payload{}, ErrInvalidSignature
	}

	raw, err := Decode(parts[1])
	if err != nil {
		return Payload{}, ErrInvalidFormat
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Payload{}, ErrInvalidFormat
	}

	if payload.Type != expected {
		return Payload{}, ErrInvalidTokenType
	}
	if payload.ExpiresAt < now.Unix() {
		return Payload{}, ErrTokenExpired
	}

	return payload, nil
}

// ShouldRefresh reports whether an access token is unverifiable or expires
// within threshold.
func ShouldRefresh(token, secret string, threshold time.Duration, now time.Time) bool {
	payload, err := Verify(token, secret, KindAccess, now)
	if err != nil {
		return true
	}

	return payload.ExpiresAt-now.Unix() < int64(threshold/time.Second)
}

// ExtractFromHeader accepts exactly "Bearer <token>".
func ExtractFromHeader(value string) (string, bool) {
	parts := strings.Split(value, " ")
	if len(parts) != 2 || parts[0] != TokenTypeBearer || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

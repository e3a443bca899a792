package tokens

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var signingMethod = jwt.SigningMethodHS256

// Encode returns the unpadded base64url form of data.
func Encode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func Decode(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(segment)
}

// Hash returns the hex SHA-256 digest of input.
func Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Sign computes the hex HMAC-SHA256 of message keyed by secret.
func Sign(message, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}

	sig, err := signingMethod.Sign(message, []byte(secret))
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sig), nil
}

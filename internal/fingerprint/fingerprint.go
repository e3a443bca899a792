// Package fingerprint derives a stable device identifier from client
// environment attributes. The result is a weak secondary signal carried in
// access tokens, not a security boundary.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"herbal-store/internal/observability"
)

const separator = "|"

type Attributes struct {
	UserAgent        string `json:"user_agent"`
	ScreenResolution string `json:"screen_resolution"`
	Timezone         string `json:"timezone"`
	Platform         string `json:"platform"`
	Language         string `json:"language"`
}

type Hasher interface {
	Hash(input string) (string, error)
}

type SHA256Hasher struct{}

func (SHA256Hasher) Hash(input string) (string, error) {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:]), nil
}

type Fingerprinter struct {
	hasher Hasher
	logger *observability.Logger
}

func New(hasher Hasher, logger *observability.Logger) *Fingerprinter {
	if hasher == nil {
		hasher = SHA256Hasher{}
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Fingerprinter{hasher: hasher, logger: logger}
}

func (f *Fingerprinter) Fingerprint(attrs Attributes) string {
	input := strings.Join([]string{
		attrs.UserAgent,
		attrs.ScreenResolution,
		attrs.Timezone,
		attrs.Platform,
		attrs.Language,
	}, separator)

	digest, err := f.hash(input)
	if err != nil {
		f.logger.Warn("fingerprint_fallback_hash", map[string]any{"error": err.Error()})
		return RollingHash(input)
	}

	return digest
}

func (f *Fingerprinter) hash(input string) (digest string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hasher panicked: %v", rec)
		}
	}()

	return f.hasher.Hash(input)
}

// RollingHash is the 32-bit "h*31 + c" string hash over UTF-16 code units,
// rendered as the base-36 form of its absolute value.
func RollingHash(input string) string {
	var h int32
	for _, unit := range utf16.Encode([]rune(input)) {
		h = (h << 5) - h + int32(unit)
	}

	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}

	return strconv.FormatInt(abs, 36)
}

package tokens

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var encodedHeader = mustEncodeHeader()

func mustEncodeHeader() string {
	raw, err := json.Marshal(header{Alg: signingMethod.Alg(), Typ: "JWT"})
	if err != nil {
		panic(err)
	}
	return Encode(raw)
}

func IssueAccess(claims AccessClaims, secret string, ttl time.Duration, now time.Time) (Issued, error) {
	switch {
	case strings.TrimSpace(claims.Subject) == "":
		return Issued{}, issuanceFailed(KindAccess, errors.New("missing subject"))
	case strings.TrimSpace(claims.Email) == "":
		return Issued{}, issuanceFailed(KindAccess, errors.New("missing email"))
	case strings.TrimSpace(claims.SessionID) == "":
		return Issued{}, issuanceFailed(KindAccess, errors.New("missing session id"))
	}

	return issue(Payload{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		Device:    claims.Device,
		SessionID: claims.SessionID,
		Type:      KindAccess,
	}, secret, ttl, now)
}

// IssueRefresh mints a refresh token; it carries only subject and session,
// the identity fields are left blank.
func IssueRefresh(claims RefreshClaims, secret string, ttl time.Duration, now time.Time) (Issued, error) {
	switch {
	case strings.TrimSpace(claims.Subject) == "":
		return Issued{}, issuanceFailed(KindRefresh, errors.New("missing subject"))
	case strings.TrimSpace(claims.SessionID) == "":
		return Issued{}, issuanceFailed(KindRefresh, errors.New("missing session id"))
	}

	return issue(Payload{
		Subject:   claims.Subject,
		SessionID: claims.SessionID,
		Type:      KindRefresh,
	}, secret, ttl, now)
}

func issue(payload Payload, secret string, ttl time.Duration, now time.Time) (Issued, error) {
	seconds := int64(ttl / time.Second)
	if seconds <= 0 {
		return Issued{}, issuanceFailed(payload.Type, errors.New("non-positive ttl"))
	}

	jti, err := uuid.NewRandom()
	if err != nil {
		return Issued{}, issuanceFailed(payload.Type, err)
	}

	payload.IssuedAt = now.Unix()
	payload.ExpiresAt = payload.IssuedAt + seconds
	payload.ID = jti.String()

	raw, err := json.Marshal(payload)
	if err != nil {
		return Issued{}, issuanceFailed(payload.Type, err)
	}

	signingInput := encodedHeader + "." + Encode(raw)
	signature, err := Sign(signingInput, secret)
	if err != nil {
		return Issued{}, issuanceFailed(payload.Type, err)
	}

	return Issued{
		Token:     signingInput + "." + signature,
		ExpiresIn: seconds,
	}, nil
}

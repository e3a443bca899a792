package tokens_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herbal-store/internal/tokens"
)

const testSecret = "test-secret"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func accessClaims() tokens.AccessClaims {
	return tokens.AccessClaims{
		Subject:   "user-1",
		Email:     "ana@example.com",
		Role:      "customer",
		Device:    "abc123",
		SessionID: "session-1",
	}
}

func TestCodec_EncodeIsURLSafeWithoutPadding(t *testing.T) {
	t.Parallel()

	encoded := tokens.Encode([]byte{0xfb, 0xff})
	assert.Equal(t, "-_8", encoded)

	decoded, err := tokens.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfb, 0xff}, decoded)

	_, err = tokens.Decode("-_8=")
	assert.Error(t, err, "padded input is rejected")
}

func TestCodec_HashAndSignKnownVectors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", tokens.Hash("abc"))

	sig, err := tokens.Sign("what do ya want for nothing?", "Jefe")
	require.NoError(t, err)
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", sig)

	again, err := tokens.Sign("what do ya want for nothing?", "Jefe")
	require.NoError(t, err)
	assert.Equal(t, sig, again)

	other, err := tokens.Sign("what do ya want for nothing?", "Jeff")
	require.NoError(t, err)
	assert.NotEqual(t, sig, other)

	_, err = tokens.Sign("message", "")
	assert.Error(t, err)
}

func TestVerify_RoundTripAccess(t *testing.T) {
	t.Parallel()

	issued, err := tokens.IssueAccess(accessClaims(), testSecret, 15*time.Minute, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(900), issued.ExpiresIn)
	assert.Len(t, strings.Split(issued.Token, "."), 3)

	payload, err := tokens.Verify(issued.Token, testSecret, tokens.KindAccess, fixedNow)
	require.NoError(t, err)

	claims := accessClaims()
	assert.Equal(t, claims.Subject, payload.Subject)
	assert.Equal(t, claims.Email, payload.Email)
	assert.Equal(t, claims.Role, payload.Role)
	assert.Equal(t, claims.Device, payload.Device)
	assert.Equal(t, claims.SessionID, payload.SessionID)
	assert.Equal(t, tokens.KindAccess, payload.Type)
	assert.Equal(t, fixedNow.Unix(), payload.IssuedAt)
	assert.Equal(t, fixedNow.Unix()+900, payload.ExpiresAt)
	assert.NotEmpty(t, payload.ID)
}

func TestVerify_RoundTripRefreshHasBlankIdentity(t *testing.T) {
	t.Parallel()

	issued, err := tokens.IssueRefresh(tokens.RefreshClaims{Subject: "user-1", SessionID: "session-1"}, testSecret, 7*24*time.Hour, fixedNow)
	require.NoError(t, err)

	payload, err := tokens.Verify(issued.Token, testSecret, tokens.KindRefresh, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "user-1", payload.Subject)
	assert.Equal(t, "session-1", payload.SessionID)
	assert.Empty(t, payload.Email)
	assert.Empty(t, payload.Role)
	assert.Empty(t, payload.Device)
	assert.Equal(t, int64(604800), issued.ExpiresIn)
}

func TestVerify_RejectsWrongSegmentCount(t *testing.T) {
	t.Parallel()

	for _, token := range []string{"", "abc", "a.b", "a.b.c.d"} {
		_, err := tokens.Verify(token, testSecret, tokens.KindAccess, fixedNow)
		assert.ErrorIs(t, err, tokens.ErrInvalidFormat, token)
	}
}

func TestVerify_AnySignatureFlipIsRejected(t *testing.T) {
	t.Parallel()

	issued, err := tokens.IssueAccess(accessClaims(), testSecret, 15*time.Minute, fixedNow)
	require.NoError(t, err)

	sigStart := strings.LastIndex(issued.Token, ".") + 1
	for i := sigStart; i < len(issued.Token); i++ {
		replacement := byte('0')
		if issued.Token[i] == '0' {
			replacement = '1'
		}
		tampered := issued.Token[:i] + string(replacement) + issued.Token[i+1:]

		_, err := tokens.Verify(tampered, testSecret, tokens.KindAccess, fixedNow)
		require.ErrorIs(t, err, tokens.ErrInvalidSignature, "position %d", i)
	}

	upper := issued.Token[:sigStart] + strings.ToUpper(issued.Token[sigStart:])
	if upper != issued.Token {
		_, err = tokens.Verify(upper, testSecret, tokens.KindAccess, fixedNow)
		assert.ErrorIs(t, err, tokens.ErrInvalidSignature)
	}
}

func TestVerify_RejectsTamperedPayloadAndWrongSecret(t *testing.T) {
	t.Parallel()

	issued, err := tokens.IssueAccess(accessClaims(), testSecret, 15*time.Minute, fixedNow)
	require.NoError(t, err)

	parts := strings.Split(issued.Token, ".")
	forged := tokens.Encode([]byte(`{"sub":"admin","type":"access","exp":9999999999}`))
	_, err = tokens.Verify(parts[0]+"."+forged+"."+parts[2], testSecret, tokens.KindAccess, fixedNow)
	assert.ErrorIs(t, err, tokens.ErrInvalidSignature)

	_, err = tokens.Verify(issued.Token, "other-secret", tokens.KindAccess, fixedNow)
	assert.ErrorIs(t, err, tokens.ErrInvalidSignature)
}

func TestVerify_SignedGarbagePayloadIsInvalidFormat(t *testing.T) {
	t.Parallel()

	input := tokens.Encode([]byte(`{"alg":"HS256"}`)) + "." + tokens.Encode([]byte("not json"))
	sig, err := tokens.Sign(input, testSecret)
	require.NoError(t, err)

	_, err = tokens.Verify(input+"."+sig, testSecret, tokens.KindAccess, fixedNow)
	assert.ErrorIs(t, err, tokens.ErrInvalidFormat)
}

func TestVerify_ExpiredTokenIsRejected(t *testing.T) {
	t.Parallel()

	issued, err := tokens.IssueAccess(accessClaims(), testSecret, 15*time.Minute, fixedNow)
	require.NoError(t, err)

	_, err = tokens.Verify(issued.Token, testSecret, tokens.KindAccess, fixedNow.Add(15*time.Minute))
	assert.NoError(t, err, "exp equal to now is still valid")

	_, err = tokens.Verify(issued.Token, testSecret, tokens.KindAccess, fixedNow.Add(15*time.Minute+time.Second))
	assert.ErrorIs(t, err, tokens.ErrTokenExpired)
}

func TestVerify_RefreshPresentedAsAccess(t *testing.T) {
	t.Parallel()

	issued, err := tokens.IssueRefresh(tokens.RefreshClaims{Subject: "user-1", SessionID: "session-1"}, testSecret, time.Hour, fixedNow)
	require.NoError(t, err)

	_, err = tokens.Verify(issued.Token, testSecret, tokens.KindAccess, fixedNow)
	assert.ErrorIs(t, err, tokens.ErrInvalidTokenType)

	// type is checked before expiry
	_, err = tokens.Verify(issued.Token, testSecret, tokens.KindAccess, fixedNow.Add(48*time.Hour))
	assert.ErrorIs(t, err, tokens.ErrInvalidTokenType)
}

func TestIssue_MissingClaimsFailGenerically(t *testing.T) {
	t.Parallel()

	claims := accessClaims()
	claims.Email = ""
	_, err := tokens.IssueAccess(claims, testSecret, time.Minute, fixedNow)
	require.Error(t, err)

	var issuanceErr *tokens.IssuanceError
	require.True(t, errors.As(err, &issuanceErr))
	assert.Equal(t, tokens.KindAccess, issuanceErr.Kind)
	assert.Equal(t, "failed to generate access token", err.Error())
	assert.NotNil(t, errors.Unwrap(err))

	_, err = tokens.IssueRefresh(tokens.RefreshClaims{Subject: "user-1"}, testSecret, time.Minute, fixedNow)
	assert.EqualError(t, err, "failed to generate refresh token")

	_, err = tokens.IssueAccess(accessClaims(), "", time.Minute, fixedNow)
	assert.EqualError(t, err, "failed to generate access token")

	_, err = tokens.IssueAccess(accessClaims(), testSecret, 0, fixedNow)
	assert.EqualError(t, err, "failed to generate access token")
}

func TestIssue_EachTokenGetsFreshID(t *testing.T) {
	t.Parallel()

	first, err := tokens.IssueAccess(accessClaims(), testSecret, time.Minute, fixedNow)
	require.NoError(t, err)
	second, err := tokens.IssueAccess(accessClaims(), testSecret, time.Minute, fixedNow)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)
}

func TestShouldRefresh(t *testing.T) {
	t.Parallel()

	issued, err := tokens.IssueAccess(accessClaims(), testSecret, 15*time.Minute, fixedNow)
	require.NoError(t, err)

	assert.False(t, tokens.ShouldRefresh(issued.Token, testSecret, 5*time.Minute, fixedNow))
	assert.False(t, tokens.ShouldRefresh(issued.Token, testSecret, 5*time.Minute, fixedNow.Add(10*time.Minute)))
	assert.True(t, tokens.ShouldRefresh(issued.Token, testSecret, 5*time.Minute, fixedNow.Add(10*time.Minute+time.Second)))
	assert.True(t, tokens.ShouldRefresh(issued.Token, "wrong", 5*time.Minute, fixedNow))
	assert.True(t, tokens.ShouldRefresh("garbage", testSecret, 5*time.Minute, fixedNow))
}

func TestExtractFromHeader(t *testing.T) {
	t.Parallel()

	token, ok := tokens.ExtractFromHeader("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)

	for _, value := range []string{
		"",
		"bearer abc",
		"abc.def.ghi",
		"Bearer",
		"Bearer ",
		"Bearer  abc",
		"Bearer abc def",
		"Basic abc",
	} {
		_, ok := tokens.ExtractFromHeader(value)
		assert.False(t, ok, "%q", value)
	}
}

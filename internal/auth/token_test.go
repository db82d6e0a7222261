package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/gatekeeper/internal/apperr"
)

func newTestTokens(t *testing.T) *Tokens {
	t.Helper()
	tokens, err := NewTokens(TokenConfig{Secret: "test-signing-secret", TTL: time.Hour})
	require.NoError(t, err)
	return tokens
}

func TestNewTokensRequiresSecret(t *testing.T) {
	_, err := NewTokens(TokenConfig{Secret: "  "})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
}

func TestIssueAndVerify(t *testing.T) {
	tokens := newTestTokens(t)

	tok, err := tokens.Issue("user-1", "owner")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)

	claims, err := tokens.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "owner", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyRejectsExpired(t *testing.T) {
	tokens := newTestTokens(t)
	tok, err := tokens.Issue("user-1", "user")
	require.NoError(t, err)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = tokens.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyCollapsesFailures(t *testing.T) {
	tokens := newTestTokens(t)
	tok, err := tokens.Issue("user-1", "user")
	require.NoError(t, err)

	other, err := NewTokens(TokenConfig{Secret: "another-secret"})
	require.NoError(t, err)
	foreign, err := other.Issue("user-1", "admin")
	require.NoError(t, err)

	wrongIssuer, err := NewTokens(TokenConfig{Secret: "test-signing-secret", Issuer: "someone-else"})
	require.NoError(t, err)
	impostor, err := wrongIssuer.Issue("user-1", "admin")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-1",
		"iss": defaultTokenIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"iss": defaultTokenIssuer,
	}).SignedString([]byte("test-signing-secret"))
	require.NoError(t, err)

	tampered := tok.Value[:strings.LastIndex(tok.Value, ".")] + ".c2lnbmF0dXJl"

	for name, raw := range map[string]string{
		"empty":          "",
		"garbage":        "not.a.jwt",
		"wrong secret":   foreign.Value,
		"wrong issuer":   impostor.Value,
		"alg none":       none,
		"missing expiry": noExpiry,
		"tampered":       tampered,
	} {
		_, err := tokens.Verify(raw)
		assert.Equal(t, ErrInvalidToken, err, name)
	}
}

func TestIssueRequiresUser(t *testing.T) {
	_, err := newTestTokens(t).Issue("", "user")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"payout-ledger/internal/config"
)

func testAuth(ttl time.Duration) *Authenticator {
	return NewAuthenticator(config.AuthConfig{
		JWTSecret:   "secret",
		TokenTTL:    ttl,
		AdminSecret: "admin",
	})
}

func TestToken_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.Int64Range(1, 1<<53).Draw(t, "account_id")
		a := testAuth(time.Hour)

		token, err := a.GenerateToken(id, "user")
		require.NoError(t, err)

		claims, err := a.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, id, claims.AccountID)
	})
}

func TestParseToken_Rejects(t *testing.T) {
	a := testAuth(time.Hour)

	other := NewAuthenticator(config.AuthConfig{JWTSecret: "other"})
	foreign, err := other.GenerateToken(1, "user")
	require.NoError(t, err)
	_, err = a.ParseToken(foreign)
	assert.Error(t, err, "token signed with another secret")

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = a.ParseToken(expired)
	assert.Error(t, err, "expired token")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{AccountID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.ParseToken(none)
	assert.Error(t, err, "unsigned token")

	zero, err := a.GenerateToken(0, "user")
	require.NoError(t, err)
	_, err = a.ParseToken(zero)
	assert.Error(t, err, "non-positive account id")
}

func TestGenerateToken_RequiresSecret(t *testing.T) {
	_, err := NewAuthenticator(config.AuthConfig{}).GenerateToken(1, "user")
	assert.Error(t, err)
}

func TestSecretMatches(t *testing.T) {
	assert.True(t, secretMatches([]byte("admin"), "admin"))
	assert.False(t, secretMatches([]byte("admin"), "Admin"))
	assert.False(t, secretMatches([]byte("admin"), ""))
	assert.False(t, secretMatches(nil, ""))
	assert.False(t, secretMatches(nil, "anything"))
}

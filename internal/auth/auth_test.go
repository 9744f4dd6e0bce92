package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/StudyChat/internal/auth"
	"github.com/fenggwsx/StudyChat/internal/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:     "unit-test-secret",
		Issuer:     "studychat-test",
		Expiration: time.Hour,
	}
}

func TestHashAndCompareSecret(t *testing.T) {
	hash, err := auth.HashSecret("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.NoError(t, auth.CompareSecret(hash, "hunter2"))
	assert.Error(t, auth.CompareSecret(hash, "wrong"))
}

func TestHashSecretRejectsEmpty(t *testing.T) {
	_, err := auth.HashSecret("")
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testJWTConfig()

	token, err := auth.NewToken(cfg, "uid-123", "Ana")
	require.NoError(t, err)

	claims, err := auth.ParseToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "uid-123", claims.UserID)
	assert.Equal(t, "Ana", claims.DisplayName)
	assert.Equal(t, cfg.Issuer, claims.Issuer)
}

func TestParseTokenWrongSecret(t *testing.T) {
	cfg := testJWTConfig()

	token, err := auth.NewToken(cfg, "uid-123", "Ana")
	require.NoError(t, err)

	other := cfg
	other.Secret = "another-secret"
	_, err = auth.ParseToken(other, token)
	assert.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Expiration = -time.Minute

	token, err := auth.NewToken(cfg, "uid-123", "Ana")
	require.NoError(t, err)

	_, err = auth.ParseToken(cfg, token)
	assert.Error(t, err)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := auth.ParseToken(testJWTConfig(), "not-a-token")
	assert.Error(t, err)
}

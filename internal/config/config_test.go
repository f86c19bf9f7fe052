package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", " c2VjcmV0 ")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "c2VjcmV0", cfg.JWT.Secret)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, "SHA-256", cfg.PasswordHashAlgorithm)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "/api/v1/users", cfg.UserService.Path)
	assert.Equal(t, 0.5, cfg.UserService.BreakerFailureRate)
	assert.Empty(t, cfg.DB.DSN)
}

func TestParseRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Parse()
	require.Error(t, err)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "c2VjcmV0")
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "5m")
	t.Setenv("PASSWORD_HASH_ALGORITHM", "sha3-256")
	t.Setenv("USER_SERVICE_URL", "http://users:8080/")
	t.Setenv("USER_SERVICE_BREAKER_WINDOW", "20")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, "SHA3-256", cfg.PasswordHashAlgorithm)
	assert.Equal(t, "http://users:8080", cfg.UserService.URL)
	assert.Equal(t, 20, cfg.UserService.BreakerWindow)
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "c2VjcmV0")
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "2h")
	t.Setenv("JWT_REFRESH_TOKEN_TTL", "1h")
	t.Setenv("USER_SERVICE_BREAKER_FAILURE_RATE", "1.5")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ACCESS_TOKEN_TTL must be shorter")
	assert.Contains(t, err.Error(), "USER_SERVICE_BREAKER_FAILURE_RATE")
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DevelopmentFallsBackWithWarning(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, FallbackAccessSecret, cfg.AccessSecret)
	assert.Equal(t, FallbackRefreshSecret, cfg.RefreshSecret)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "insecure fallback token secrets")
	assert.Contains(t, cfg.Warnings[0], "JWT_ACCESS_SECRET")
}

func TestLoad_ProductionRejectsMissingSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_ACCESS_SECRET", "set")
	t.Setenv("JWT_REFRESH_SECRET", "")

	_, err := Load(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_REFRESH_SECRET")
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("JWT_ACCESS_SECRET", "a")
	t.Setenv("JWT_REFRESH_SECRET", "r")
	t.Setenv("JWT_ACCESS_EXPIRY", "600")
	t.Setenv("LOGIN_RATE_LIMIT_MAX", "-3")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.AppEnv)
	assert.Empty(t, cfg.Warnings)
	assert.Equal(t, 10*time.Minute, cfg.AccessTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL())
	assert.Equal(t, 5, cfg.RefreshThresholdMinutes)
	assert.Equal(t, 10, cfg.LoginRateLimitMax, "non-positive values fall back to the default")
	assert.Equal(t, time.Minute, cfg.LoginRateLimitWindow())
	assert.Equal(t, BackendMemory, cfg.StateBackend)
	assert.Equal(t, 30*24*time.Hour, cfg.StateRetention())
}

func TestLoad_RejectsInconsistentSettings(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "a")
	t.Setenv("JWT_REFRESH_SECRET", "r")

	t.Run("refresh not longer than access", func(t *testing.T) {
		t.Setenv("JWT_ACCESS_EXPIRY", "3600")
		t.Setenv("JWT_REFRESH_EXPIRY", "3600")
		_, err := Load(Options{})
		assert.Error(t, err)
	})

	t.Run("postgres without database url", func(t *testing.T) {
		t.Setenv("STATE_BACKEND", "postgres")
		t.Setenv("DATABASE_URL", "")
		_, err := Load(Options{})
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STATE_BACKEND", "cookies")
		_, err := Load(Options{})
		assert.Error(t, err)
	})

	t.Run("half an admin", func(t *testing.T) {
		t.Setenv("ADMIN_EMAIL", "admin@example.com")
		t.Setenv("ADMIN_PASSWORD", "")
		_, err := Load(Options{})
		assert.Error(t, err)
	})
}

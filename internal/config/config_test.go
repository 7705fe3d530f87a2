package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("ENV", "test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 10*time.Minute, cfg.Session.NonceTTL)
	assert.Equal(t, StoreMemory, cfg.Session.StoreBackend)
	assert.Equal(t, 1*time.Second, cfg.Popup.StatusDelay)
	assert.Equal(t, "/admin", cfg.Server.AdminURL)
	assert.False(t, cfg.Turnstile.Enabled)
	assert.False(t, cfg.TwoFactor.Enabled)
}

func TestServerConfig_Timeouts_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.actual, tt.name)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RATE_LIMIT_MAX_ATTEMPTS", "3")
	t.Setenv("RATE_LIMIT_WINDOW", "15m")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("TURNSTILE_ALLOWLIST", "10.0.0.0/8, 192.168.1.5 ,")
	t.Setenv("STATUS_DELAY", "500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.5"}, cfg.Turnstile.AllowList)
	assert.Equal(t, 500*time.Millisecond, cfg.Popup.StatusDelay)
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing JWT secret", map[string]string{"JWT_SECRET": ""}},
		{"weak JWT secret", map[string]string{"JWT_SECRET": "short"}},
		{"status delay too long", map[string]string{"STATUS_DELAY": "5s"}},
		{"unknown store backend", map[string]string{"STORE_BACKEND": "memcached"}},
		{"turnstile without keys", map[string]string{"TURNSTILE_ENABLED": "true"}},
		{"two-factor without key", map[string]string{"TWO_FACTOR_ENABLED": "true"}},
		{"postgres without password", map[string]string{"STORE_BACKEND": "postgres"}},
		{"zero max attempts", map[string]string{"RATE_LIMIT_MAX_ATTEMPTS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateJWTSecret(t *testing.T) {
	assert.NoError(t, validateJWTSecret("0123456789abcdef", "development"))
	assert.Error(t, validateJWTSecret("0123456789abcdef", "production"))
	assert.Error(t, validateJWTSecret("changeme", "development"))
}

func TestLoadUI(t *testing.T) {
	t.Run("defaults when no file", func(t *testing.T) {
		ui, err := LoadUI("")
		require.NoError(t, err)
		assert.Equal(t, DefaultUI(), ui)
	})

	t.Run("overlay merges onto defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ui.yaml")
		content := "labels:\n  title: Sign in\nbutton:\n  background: \"#000000\"\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		ui, err := LoadUI(path)
		require.NoError(t, err)
		assert.Equal(t, "Sign in", ui.Labels.Title)
		assert.Equal(t, "Password", ui.Labels.Password)
		assert.Equal(t, "#000000", ui.Button.Background)
		assert.Equal(t, "#ffffff", ui.Button.Text)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ui.yaml")
		require.NoError(t, os.WriteFile(path, []byte("labels: [unclosed"), 0o600))

		_, err := LoadUI(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadUI(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

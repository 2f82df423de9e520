package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidateWithCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Admin.Password = "s3cret"
	cfg.Keys.EnvSecret = "signing-secret"
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing username", func(c *Config) { c.Admin.Username = "" }, ErrMissingAdminUsername},
		{"missing password", func(c *Config) { c.Admin.Password = "" }, ErrMissingAdminPassword},
		{"missing signing secret", func(c *Config) { c.Keys.EnvSecret = "" }, ErrMissingSigningSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Admin.Password = "s3cret"
			cfg.Keys.EnvSecret = "signing-secret"
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Admin.Password = "s3cret"
	cfg.Keys.Backend = "hsm"
	require.Error(t, cfg.Validate())
}

func TestValidateRepairsOutOfRangeValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Admin.Password = "s3cret"
	cfg.Keys.EnvSecret = "signing-secret"
	cfg.Keys.RotationDays = -1
	cfg.Keys.TokenTTLHours = 0
	cfg.Tracing.SampleRatio = 2
	cfg.Server.SessionCookieName = ""

	require.NoError(t, cfg.Validate())
	require.Equal(t, 30, cfg.Keys.RotationDays)
	require.Equal(t, 8, cfg.Keys.TokenTTLHours)
	require.Equal(t, float64(1), cfg.Tracing.SampleRatio)
	require.Equal(t, "admin_session", cfg.Server.SessionCookieName)
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
admin:
  username: root
  password: from-file
keys:
  backend: env
  env_secret: file-secret
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("ADMINTRUST_ADMIN_PASSWORD", "from-env")
	t.Setenv("ADMINTRUST_WEBHOOK_URL", "https://hooks.example.com/events")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "root", cfg.Admin.Username)
	require.Equal(t, "from-env", cfg.Admin.Password)
	require.Equal(t, "file-secret", cfg.Keys.EnvSecret)
	require.Equal(t, "https://hooks.example.com/events", cfg.Threat.WebhookURL)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, ":8443", cfg.Server.Listen)
}

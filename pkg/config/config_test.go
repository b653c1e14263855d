package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8600", cfg.Backend.BaseURL)
	require.Equal(t, "dev", cfg.Backend.Tenant)
	require.Equal(t, "websocket", cfg.Transport.Mode)
	require.Equal(t, time.Second, cfg.Transport.PollInterval())
	require.Equal(t, 30*time.Second, cfg.Transport.Heartbeat())
	require.Equal(t, 10, cfg.Transport.MaxAttempts)
	require.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatkit.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[backend]
base_url = "https://support.acme.example"
tenant = "acme"

[transport]
mode = "polling"
poll_interval_ms = 250
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://support.acme.example", cfg.Backend.BaseURL)
	require.Equal(t, "acme", cfg.Backend.Tenant)
	require.Equal(t, "polling", cfg.Transport.Mode)
	require.Equal(t, 250*time.Millisecond, cfg.Transport.PollInterval())
	// Untouched keys keep their defaults.
	require.Equal(t, 10, cfg.Transport.MaxAttempts)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatkit.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[backend]
tenant = "from-file"
`), 0o644))

	t.Setenv("CHATKIT_BACKEND_TENANT", "from-env")
	t.Setenv("CHATKIT_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Backend.Tenant)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFileRejected(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Transport.Mode = "carrier-pigeon"
	require.Error(t, cfg.Validate())

	cfg.Transport.Mode = "polling"
	cfg.Backend.BaseURL = ""
	require.Error(t, cfg.Validate())
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localconnect/devos/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := config.LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.SendTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Design.PendingTTL)
	assert.Equal(t, time.Hour, cfg.Design.CompletedTTL)
	assert.Contains(t, cfg.Server.CORSOrigins, "http://localhost:3000")
	assert.Equal(t, []string{"*"}, cfg.WebSocket.AllowedOrigins)
}

func TestLoadFile_YAMLOverlayAndExpansion(t *testing.T) {
	t.Setenv("TEST_DEVOS_DB", "/var/lib/devos/state.db")
	path := writeConfig(t, `
server:
  port: 4000
  runner_id: runner-7
store:
  driver: sqlite
  path: ${TEST_DEVOS_DB}
websocket:
  send_timeout: 2s
  ping_interval: 20s
  pong_wait: 30s
  allowed_origins: [http://dash.test]
design:
  completed_ttl: 15m
logging:
  format: json
`)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "runner-7", cfg.Server.RunnerID)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/var/lib/devos/state.db", cfg.Store.Path)
	assert.Equal(t, 2*time.Second, cfg.WebSocket.SendTimeout)
	assert.Equal(t, 20*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, []string{"http://dash.test"}, cfg.WebSocket.AllowedOrigins)
	assert.Equal(t, 15*time.Minute, cfg.Design.CompletedTTL)
	assert.Equal(t, 24*time.Hour, cfg.Design.PendingTTL, "unset keys keep defaults")
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 4000\n")
	t.Setenv("DEVOS_PORT", "5000")
	t.Setenv("DEVOS_CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("DEVOS_DESIGN_SWEEP_INTERVAL", "30s")
	t.Setenv("DEVOS_WS_ALLOWED_ORIGINS", "http://dash.test")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.Design.SweepInterval)
	assert.Equal(t, []string{"http://dash.test"}, cfg.WebSocket.AllowedOrigins)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad driver", "store:\n  driver: postgres\n"},
		{"ping not below pong", "websocket:\n  ping_interval: 60s\n  pong_wait: 60s\n"},
		{"bad duration", "websocket:\n  send_timeout: soon\n"},
		{"zero send timeout", "websocket:\n  send_timeout: 0s\n"},
		{"bad format", "logging:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_ReadsConfigEnv(t *testing.T) {
	t.Setenv(config.ConfigPathEnv, writeConfig(t, "server:\n  version: 9.9.9\n"))
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "9.9.9", cfg.Server.Version)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Zereker/gamenet"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gamenet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, gamenet.DefaultMaxConnections, cfg.Server.MaxConnections)
	assert.Equal(t, 100*time.Millisecond, cfg.Server.AcceptInterval.Duration)
	assert.Equal(t, gamenet.DefaultMaxMessageSize, cfg.Client.MaxMessageSize)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9000
  max_connections: 4
  accept_interval: 250ms
  max_message_size: 4096
  read_timeout: 30s
  idle_timeout: 1m
client:
  host: game.example.com
  dial_timeout: 2s
log:
  level: debug
  format: json
metrics:
  enabled: true
  addr: 127.0.0.1:9100
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Server.MaxConnections)
	assert.Equal(t, 250*time.Millisecond, cfg.Server.AcceptInterval.Duration)
	assert.Equal(t, 4096, cfg.Server.MaxMessageSize)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, time.Minute, cfg.Server.IdleTimeout.Duration)
	// Unset fields keep their defaults.
	assert.Equal(t, gamenet.DefaultSendBufferSize, cfg.Server.SendBufferSize)
	assert.Equal(t, 10*time.Second, cfg.Server.PingInterval.Duration)

	assert.Equal(t, "game.example.com", cfg.Client.Host)
	assert.Equal(t, 7777, cfg.Client.Port)
	assert.Equal(t, 2*time.Second, cfg.Client.DialTimeout.Duration)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "gamenet", cfg.Metrics.Namespace)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]string{
		"bad duration":     "server:\n  accept_interval: soon\n",
		"bad yaml":         "server: [\n",
		"message too big":  "client:\n  max_message_size: 70000\n",
		"no connections":   "server:\n  max_connections: 0\n",
		"unknown level":    "log:\n  level: loud\n",
		"metrics no addr":  "metrics:\n  enabled: true\n  addr: \"\"\n",
		"client port zero": "client:\n  port: 0\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(struct {
		D Duration `yaml:"d"`
	}{Duration{1500 * time.Millisecond}})
	require.NoError(t, err)
	assert.Equal(t, "d: 1.5s\n", string(out))
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.MaxConnections = 2
	cfg.Server.AcceptBurst = 1

	server, err := gamenet.NewServer(cfg.Server.Options()...)
	require.NoError(t, err)
	require.NoError(t, server.Start(0))
	defer server.Stop()

	client, err := gamenet.NewClient(cfg.Client.Options()...)
	require.NoError(t, err)
	assert.False(t, client.IsActive())
}

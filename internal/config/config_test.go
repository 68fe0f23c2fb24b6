package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, TransportAuto, cfg.Transport)
	assert.Equal(t, "chamber", cfg.AdvertisingPrefix)
	assert.Equal(t, 16, cfg.Queue.Capacity)
	assert.Equal(t, 10*time.Millisecond, cfg.Queue.EnqueueTimeout)
	assert.Equal(t, "priority", cfg.Queue.Policy)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.SlowPublishThreshold)
	assert.Equal(t, 180, cfg.Sync.ChunkSize)
	assert.Equal(t, 2*time.Second, cfg.Sync.WriteInterval)
	assert.Equal(t, 65536, cfg.Sync.MaxDocumentSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.Backend.ShutdownTimeout)

	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
transport: noop
queue:
  capacity: 4
  policy: drop_oldest
sync:
  chunk_size: 96
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, TransportNoop, cfg.Transport)
	assert.Equal(t, 4, cfg.Queue.Capacity)
	assert.Equal(t, "drop_oldest", cfg.Queue.Policy)
	assert.Equal(t, 96, cfg.Sync.ChunkSize)
	// Untouched fields keep defaults.
	assert.Equal(t, 65536, cfg.Sync.MaxDocumentSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }},
		{"bad transport", func(c *Config) { c.Transport = "serial" }},
		{"empty document path", func(c *Config) { c.DocumentPath = "" }},
		{"zero capacity", func(c *Config) { c.Queue.Capacity = 0 }},
		{"bad policy", func(c *Config) { c.Queue.Policy = "drop_random" }},
		{"zero chunk size", func(c *Config) { c.Sync.ChunkSize = 0 }},
		{"zero max document size", func(c *Config) { c.Sync.MaxDocumentSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

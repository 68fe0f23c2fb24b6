// Package config holds the service tunables, loadable from a YAML file.
// Missing fields are filled from struct-tag defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// Transport selection values.
const (
	TransportAuto = "auto"
	TransportNoop = "noop"
	TransportLive = "live"
)

// Config holds all service configuration.
type Config struct {
	LogLevel          string `yaml:"log_level" default:"info"`
	Transport         string `yaml:"transport" default:"auto"` // auto, noop, live
	AdvertisingPrefix string `yaml:"advertising_prefix" default:"chamber"`
	DocumentPath      string `yaml:"document_path" default:"chamber.json"`
	WriteToken        string `yaml:"write_token"` // empty disables PUT authentication

	Queue   QueueConfig   `yaml:"queue"`
	Sync    SyncConfig    `yaml:"sync"`
	Backend BackendConfig `yaml:"backend"`
}

// QueueConfig tunes the notification pipeline.
type QueueConfig struct {
	Capacity             int           `yaml:"capacity" default:"16"`
	EnqueueTimeout       time.Duration `yaml:"enqueue_timeout" default:"10ms"`
	Policy               string        `yaml:"policy" default:"priority"` // drop_newest, drop_oldest, coalesce, priority
	SlowPublishThreshold time.Duration `yaml:"slow_publish_threshold" default:"250ms"`
}

// SyncConfig tunes the document sync protocol.
type SyncConfig struct {
	ChunkSize         int           `yaml:"chunk_size" default:"180"`
	MTU               int           `yaml:"mtu" default:"185"`
	WriteInterval     time.Duration `yaml:"write_interval" default:"2s"`
	MaxDocumentSize   int           `yaml:"max_document_size" default:"65536"`
	TransferIdleLimit time.Duration `yaml:"transfer_idle_limit" default:"30s"`
}

// BackendConfig tunes transport backend lifecycle timeouts.
type BackendConfig struct {
	StartTimeout    time.Duration `yaml:"start_timeout" default:"5s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"1500ms"`
	OpTimeout       time.Duration `yaml:"op_timeout" default:"1s"`
}

// Default returns a Config populated from the struct-tag defaults.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.Transport {
	case TransportAuto, TransportNoop, TransportLive:
	default:
		return fmt.Errorf("transport must be auto, noop, or live, got %q", c.Transport)
	}

	if c.DocumentPath == "" {
		return fmt.Errorf("document_path must not be empty")
	}

	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be > 0")
	}

	switch c.Queue.Policy {
	case "drop_newest", "drop_oldest", "coalesce", "priority":
	default:
		return fmt.Errorf("queue.policy must be drop_newest, drop_oldest, coalesce, or priority, got %q", c.Queue.Policy)
	}

	if c.Sync.ChunkSize <= 0 {
		return fmt.Errorf("sync.chunk_size must be > 0")
	}

	if c.Sync.MaxDocumentSize <= 0 {
		return fmt.Errorf("sync.max_document_size must be > 0")
	}

	return nil
}

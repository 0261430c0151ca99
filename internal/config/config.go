// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and ABRANTES_* env vars.
// - Validation failures wrap ErrInvalidConfig; provider failures wrap ErrLoadConfig.
package config

import (
	"runtime"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8137".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds each per-shard capture queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of aggregation workers (and queue shards).
	WorkerCount int `koanf:"worker_count"`

	// MaxHistory bounds the per-tab rolling event log.
	MaxHistory int `koanf:"max_history"`

	// StoreBackend selects the durable store: memory or sqlite.
	StoreBackend string `koanf:"store_backend"`

	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `koanf:"sqlite_path"`

	// NATSURL enables publishing push notifications to NATS when set.
	NATSURL string `koanf:"nats_url"`

	// NATSSubject is the subject prefix; the tab id is appended.
	NATSSubject string `koanf:"nats_subject"`

	// SubscriberBuffer sizes each in-process push subscriber channel.
	SubscriberBuffer int `koanf:"subscriber_buffer"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             "127.0.0.1:8137",
		EventQueueSize:   10_000,
		WorkerCount:      runtime.NumCPU(),
		MaxHistory:       100,
		StoreBackend:     StoreSQLite,
		SQLitePath:       "abrantes.db",
		NATSURL:          "",
		NATSSubject:      "abrantes.updates",
		SubscriberBuffer: 64,
	}
}

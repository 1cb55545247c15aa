// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

// Package config loads and validates Adscope configuration from struct
// defaults, an optional YAML file, and ADSCOPE_-prefixed environment
// variables, in that order of precedence (koanf v2).
package config

import "time"

// Config is the root configuration for Adscope.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Graph       GraphConfig       `koanf:"graph"`
	Decompose   DecomposeConfig   `koanf:"decompose"`
	Database    DatabaseConfig    `koanf:"database"`
	Credentials CredentialsConfig `koanf:"credentials"`
	Queue       QueueConfig       `koanf:"queue"`
	Server      ServerConfig      `koanf:"server"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// GraphConfig configures the ad-platform Graph API client.
type GraphConfig struct {
	// BaseURL is the versioned API root, e.g. https://graph.facebook.com/v21.0
	BaseURL string `koanf:"baseurl"`

	// AppID identifies the owning application for credential lookups.
	AppID string `koanf:"appid"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `koanf:"timeout"`

	// MaxRetries bounds transient-failure retries per call attempt.
	MaxRetries int `koanf:"maxretries"`

	// RetryBaseDelay is the base delay for exponential backoff (doubles each retry).
	RetryBaseDelay time.Duration `koanf:"retrybasedelay"`

	// RequestsPerSecond paces outbound calls in steady state. 0 disables pacing.
	RequestsPerSecond float64 `koanf:"requestspersecond"`

	Governor GovernorConfig `koanf:"governor"`
}

// GovernorConfig tunes the cost-window rate governor.
// The platform scores a read at 1 unit and a write at 3 units against a
// decaying window; exceeding MaxScore blocks all calls for BlockDuration.
type GovernorConfig struct {
	DecayWindow   time.Duration `koanf:"decaywindow"`
	MaxScore      float64       `koanf:"maxscore"`
	BlockDuration time.Duration `koanf:"blockduration"`
}

// DecomposeConfig tunes request decomposition.
type DecomposeConfig struct {
	// MaxMetricsPerCall bounds the fields list of a single insights call.
	MaxMetricsPerCall int `koanf:"maxmetricspercall"`

	// Concurrency bounds in-flight branches at each fan-out level.
	// Levels multiply: this cap applies per level, not globally.
	Concurrency int `koanf:"concurrency"`
}

// DatabaseConfig configures the DuckDB analytic store.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"maxmemory"`
	Threads                int    `koanf:"threads"` // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserveinsertionorder"`
}

// CredentialsConfig configures the BadgerDB credential store.
type CredentialsConfig struct {
	// Path is the Badger directory. Empty selects an in-memory store (tests).
	Path string `koanf:"path"`

	// SelectionPolicy picks among credentials sharing an ad account:
	// "round_robin" or "first".
	SelectionPolicy string `koanf:"selectionpolicy"`
}

// QueueConfig configures the optional NATS JetStream leaf-job queue.
type QueueConfig struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	Topic         string        `koanf:"topic"`
	DurableName   string        `koanf:"durablename"`
	QueueGroup    string        `koanf:"queuegroup"`
	RetryCount    int           `koanf:"retrycount"`
	RetryInterval time.Duration `koanf:"retryinterval"`
	CloseTimeout  time.Duration `koanf:"closetimeout"`
}

// ServerConfig configures the HTTP trigger surface.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerMinute int           `koanf:"requestsperminute"`
}

// Default returns a Config with all default values, without consulting
// the config file or environment.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Graph: GraphConfig{
			BaseURL:           "https://graph.facebook.com/v21.0",
			AppID:             "",
			Timeout:           30 * time.Second,
			MaxRetries:        3,
			RetryBaseDelay:    1 * time.Second,
			RequestsPerSecond: 10,
			Governor: GovernorConfig{
				DecayWindow:   300 * time.Second,
				MaxScore:      60,
				BlockDuration: 300 * time.Second,
			},
		},
		Decompose: DecomposeConfig{
			MaxMetricsPerCall: 50,
			Concurrency:       10,
		},
		Database: DatabaseConfig{
			Path:                   "/data/adscope.duckdb",
			MaxMemory:              "2GB",
			Threads:                0,
			PreserveInsertionOrder: true,
		},
		Credentials: CredentialsConfig{
			Path:            "/data/credentials",
			SelectionPolicy: "round_robin",
		},
		Queue: QueueConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			Topic:         "insights.leaf",
			DurableName:   "insights-worker",
			QueueGroup:    "workers",
			RetryCount:    3,
			RetryInterval: 100 * time.Millisecond,
			CloseTimeout:  30 * time.Second,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8490,
			Timeout:           30 * time.Second,
			RequestsPerMinute: 120,
		},
	}
}

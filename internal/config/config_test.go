// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.Decompose.MaxMetricsPerCall != 50 {
		t.Errorf("expected default metric chunk size 50, got %d", cfg.Decompose.MaxMetricsPerCall)
	}
	if cfg.Graph.Governor.MaxScore != 60 {
		t.Errorf("expected default governor max score 60, got %g", cfg.Graph.Governor.MaxScore)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
graph:
  appid: "1234"
  requestspersecond: 5
decompose:
  maxmetricspercall: 25
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Graph.AppID != "1234" {
		t.Errorf("expected app id 1234, got %q", cfg.Graph.AppID)
	}
	if cfg.Decompose.MaxMetricsPerCall != 25 {
		t.Errorf("expected chunk size 25, got %d", cfg.Decompose.MaxMetricsPerCall)
	}
	// Untouched values keep their defaults.
	if cfg.Graph.Timeout != 30*time.Second {
		t.Errorf("expected default timeout, got %s", cfg.Graph.Timeout)
	}
}

func TestLoadFromEnvOverridesFile(t *testing.T) {
	t.Setenv("ADSCOPE_GRAPH_APPID", "from-env")
	t.Setenv("ADSCOPE_SERVER_PORT", "9000")

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Graph.AppID != "from-env" {
		t.Errorf("expected env override, got %q", cfg.Graph.AppID)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Graph.BaseURL = "" }},
		{"non-http base url", func(c *Config) { c.Graph.BaseURL = "ftp://example.com" }},
		{"zero chunk size", func(c *Config) { c.Decompose.MaxMetricsPerCall = 0 }},
		{"zero concurrency", func(c *Config) { c.Decompose.Concurrency = 0 }},
		{"zero max score", func(c *Config) { c.Graph.Governor.MaxScore = 0 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"unknown selection policy", func(c *Config) { c.Credentials.SelectionPolicy = "random" }},
		{"queue enabled without url", func(c *Config) { c.Queue.Enabled = true; c.Queue.URL = "" }},
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEnvToKey(t *testing.T) {
	t.Parallel()

	if got := envToKey("ADSCOPE_GRAPH_GOVERNOR_MAXSCORE"); got != "graph.governor.maxscore" {
		t.Errorf("unexpected key mapping: %q", got)
	}
}

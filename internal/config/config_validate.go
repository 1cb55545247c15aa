// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package config

import (
	"fmt"
	"strings"
)

// Validate checks that required configuration is present and valid.
// Validation failures are fatal at startup.
func (c *Config) Validate() error {
	if err := c.validateGraph(); err != nil {
		return err
	}
	if err := c.validateDecompose(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateCredentials(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateGraph() error {
	if c.Graph.BaseURL == "" {
		return fmt.Errorf("graph.baseurl is required")
	}
	if !strings.HasPrefix(c.Graph.BaseURL, "http://") && !strings.HasPrefix(c.Graph.BaseURL, "https://") {
		return fmt.Errorf("graph.baseurl must start with http:// or https://, got %q", c.Graph.BaseURL)
	}
	if c.Graph.Timeout <= 0 {
		return fmt.Errorf("graph.timeout must be positive, got %s", c.Graph.Timeout)
	}
	if c.Graph.MaxRetries < 0 {
		return fmt.Errorf("graph.maxretries must not be negative, got %d", c.Graph.MaxRetries)
	}
	if c.Graph.RequestsPerSecond < 0 {
		return fmt.Errorf("graph.requestspersecond must not be negative, got %g", c.Graph.RequestsPerSecond)
	}
	if c.Graph.Governor.MaxScore <= 0 {
		return fmt.Errorf("graph.governor.maxscore must be positive, got %g", c.Graph.Governor.MaxScore)
	}
	if c.Graph.Governor.DecayWindow <= 0 {
		return fmt.Errorf("graph.governor.decaywindow must be positive, got %s", c.Graph.Governor.DecayWindow)
	}
	if c.Graph.Governor.BlockDuration <= 0 {
		return fmt.Errorf("graph.governor.blockduration must be positive, got %s", c.Graph.Governor.BlockDuration)
	}
	return nil
}

func (c *Config) validateDecompose() error {
	if c.Decompose.MaxMetricsPerCall < 1 {
		return fmt.Errorf("decompose.maxmetricspercall must be at least 1, got %d", c.Decompose.MaxMetricsPerCall)
	}
	if c.Decompose.Concurrency < 1 {
		return fmt.Errorf("decompose.concurrency must be at least 1, got %d", c.Decompose.Concurrency)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

func (c *Config) validateCredentials() error {
	switch c.Credentials.SelectionPolicy {
	case "round_robin", "first":
		return nil
	default:
		return fmt.Errorf("credentials.selectionpolicy must be round_robin or first, got %q", c.Credentials.SelectionPolicy)
	}
}

func (c *Config) validateQueue() error {
	if !c.Queue.Enabled {
		return nil
	}
	if c.Queue.URL == "" {
		return fmt.Errorf("queue.url is required when queue.enabled=true")
	}
	if c.Queue.Topic == "" {
		return fmt.Errorf("queue.topic is required when queue.enabled=true")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	return nil
}

// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package remote

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/adscope/internal/config"
	"github.com/tomtom215/adscope/internal/logging"
	"github.com/tomtom215/adscope/internal/metrics"
)

// Request costs scored against the governor window. The platform weighs
// writes heavier than reads; this collector only performs reads today.
const (
	CostRead  = 1.0
	CostWrite = 3.0
)

// governorState is the admission state of the RateGovernor.
type governorState int

const (
	stateOpen governorState = iota
	stateBlocked
)

// costEntry is one recorded request weight in the decaying window.
type costEntry struct {
	cost float64
	at   time.Time
}

// RateGovernor gates every outbound platform call behind a decaying
// cost-window estimate of the remote rate limit, plus a hard Blocked state
// entered when the window overflows or when the platform itself reports
// throttling (ForceBlock).
//
// One governor instance is constructed per process and shared by reference
// across every caller hitting the same budget. Admit and RecordCall are
// linearizable: a single mutex guards the window and the block state.
//
// The Blocked state carries a single block-start timestamp. Every caller
// that observes Blocked waits until blockStart + BlockDuration; concurrent
// observers never stack additional cool-downs on top of each other.
type RateGovernor struct {
	mu         sync.Mutex
	cfg        config.GovernorConfig
	window     []costEntry
	state      governorState
	blockStart time.Time

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// NewRateGovernor creates a governor with the given window tuning.
// Zero values fall back to the platform defaults (300s window, score 60,
// 300s cool-down).
func NewRateGovernor(cfg config.GovernorConfig) *RateGovernor {
	if cfg.DecayWindow <= 0 {
		cfg.DecayWindow = 300 * time.Second
	}
	if cfg.MaxScore <= 0 {
		cfg.MaxScore = 60
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = 300 * time.Second
	}
	return &RateGovernor{
		cfg: cfg,
		now: time.Now,
	}
}

// RecordCall appends one request weight to the window, pruning decayed
// entries first. Call it when the request is issued, not when it completes.
func (g *RateGovernor) RecordCall(cost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)
	g.window = append(g.window, costEntry{cost: cost, at: now})
	metrics.GovernorWindowCost.Set(g.total())
}

// ForceBlock transitions the governor to Blocked immediately, independent
// of the window heuristic. Callers invoke it when the platform reports a
// user-rate-limit error, so the governor reacts to server-observed
// throttling rather than only the client-side estimate.
//
// If the governor is already blocked the original block start is kept;
// the cool-down is never extended.
func (g *RateGovernor) ForceBlock() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == stateBlocked {
		return
	}
	g.block(g.now(), "forced")
}

// Admit gates one call attempt. It prunes the window, and either admits
// immediately or suspends the calling goroutine until the shared block
// deadline passes. Only the caller is suspended; the wait is cancellable
// through ctx.
func (g *RateGovernor) Admit(ctx context.Context) error {
	g.mu.Lock()
	now := g.now()
	g.prune(now)

	if g.state == stateOpen && g.total() > g.cfg.MaxScore {
		g.block(now, "window")
	}

	if g.state == stateOpen {
		g.mu.Unlock()
		return nil
	}

	deadline := g.blockStart.Add(g.cfg.BlockDuration)
	g.mu.Unlock()

	metrics.GovernorWaits.Inc()
	if err := waitUntil(ctx, now, deadline); err != nil {
		return err
	}

	g.mu.Lock()
	// First waker reopens; later wakers see Open already.
	if g.state == stateBlocked && !g.now().Before(g.blockStart.Add(g.cfg.BlockDuration)) {
		g.state = stateOpen
		g.window = g.window[:0]
		metrics.GovernorState.Set(0)
		metrics.GovernorWindowCost.Set(0)
		logging.Debug().Msg("Rate governor reopened after cool-down")
	}
	g.mu.Unlock()
	return nil
}

// Blocked reports whether the governor is currently in the Blocked state.
func (g *RateGovernor) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == stateBlocked
}

// WindowCost returns the current summed cost of the decaying window.
func (g *RateGovernor) WindowCost() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.now())
	return g.total()
}

// block transitions to Blocked (must be called with mu held).
func (g *RateGovernor) block(now time.Time, cause string) {
	g.state = stateBlocked
	g.blockStart = now
	metrics.GovernorState.Set(1)
	metrics.GovernorBlocks.WithLabelValues(cause).Inc()
	logging.Warn().
		Str("cause", cause).
		Float64("window_cost", g.total()).
		Dur("cool_down", g.cfg.BlockDuration).
		Msg("Rate governor blocked")
}

// prune drops window entries older than the decay horizon (must be called
// with mu held).
func (g *RateGovernor) prune(now time.Time) {
	horizon := now.Add(-g.cfg.DecayWindow)
	i := 0
	for i < len(g.window) && g.window[i].at.Before(horizon) {
		i++
	}
	if i > 0 {
		g.window = append(g.window[:0], g.window[i:]...)
	}
}

// total sums the window costs (must be called with mu held).
func (g *RateGovernor) total() float64 {
	var sum float64
	for _, e := range g.window {
		sum += e.cost
	}
	return sum
}

// waitUntil sleeps until deadline or context cancellation.
func waitUntil(ctx context.Context, now, deadline time.Time) error {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

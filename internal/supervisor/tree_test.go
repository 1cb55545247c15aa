// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// flakyService fails its first run and then blocks until cancelled.
type flakyService struct {
	runs    atomic.Int32
	settled chan struct{}
}

func (s *flakyService) Serve(ctx context.Context) error {
	if s.runs.Add(1) == 1 {
		return errors.New("first run fails")
	}
	close(s.settled)
	<-ctx.Done()
	return ctx.Err()
}

func TestTreeRestartsFailedService(t *testing.T) {
	t.Parallel()

	cfg := DefaultTreeConfig()
	cfg.FailureBackoff = 10 * time.Millisecond
	tree := NewTree(slog.Default(), cfg)

	svc := &flakyService{settled: make(chan struct{})}
	tree.AddWorkerService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	select {
	case <-svc.settled:
	case <-time.After(5 * time.Second):
		t.Fatal("service was not restarted after its failure")
	}
	if got := svc.runs.Load(); got < 2 {
		t.Errorf("service ran %d times, want at least 2", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop on cancellation")
	}
}

func TestTreeIsolatesLayers(t *testing.T) {
	t.Parallel()

	cfg := DefaultTreeConfig()
	cfg.FailureBackoff = 10 * time.Millisecond
	tree := NewTree(slog.Default(), cfg)

	apiStarted := make(chan struct{})
	var apiOnce atomic.Bool
	tree.AddAPIService(serviceFunc(func(ctx context.Context) error {
		if apiOnce.CompareAndSwap(false, true) {
			close(apiStarted)
		}
		<-ctx.Done()
		return ctx.Err()
	}))
	// A permanently failing worker must not prevent the api layer from
	// serving.
	tree.AddWorkerService(serviceFunc(func(ctx context.Context) error {
		return errors.New("worker keeps crashing")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = tree.Serve(ctx) }()

	select {
	case <-apiStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("api layer never started while worker layer was failing")
	}
}

type serviceFunc func(ctx context.Context) error

func (f serviceFunc) Serve(ctx context.Context) error { return f(ctx) }

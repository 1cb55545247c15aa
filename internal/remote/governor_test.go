// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package remote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/adscope/internal/config"
)

func testGovernor(maxScore float64, window, block time.Duration) *RateGovernor {
	return NewRateGovernor(config.GovernorConfig{
		DecayWindow:   window,
		MaxScore:      maxScore,
		BlockDuration: block,
	})
}

func TestGovernorAdmitsUnderBudget(t *testing.T) {
	t.Parallel()

	g := testGovernor(5, time.Minute, time.Minute)
	for i := 0; i < 5; i++ {
		g.RecordCall(CostRead)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.Admit(ctx); err != nil {
		t.Fatalf("Admit at budget: %v", err)
	}
	if g.Blocked() {
		t.Error("governor blocked at exactly maxScore; budget is inclusive")
	}
}

func TestGovernorBlocksOverBudget(t *testing.T) {
	t.Parallel()

	g := testGovernor(5, time.Minute, 50*time.Millisecond)
	for i := 0; i < 6; i++ {
		g.RecordCall(CostRead)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Admit(ctx); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("admitted after %v, want at least the 50ms cool-down", elapsed)
	}
	if g.Blocked() {
		t.Error("governor still blocked after cool-down elapsed")
	}
	if got := g.WindowCost(); got != 0 {
		t.Errorf("window cost after reopen = %v, want 0", got)
	}
}

func TestGovernorSingleSharedCoolDown(t *testing.T) {
	t.Parallel()

	block := 100 * time.Millisecond
	g := testGovernor(5, time.Minute, block)
	for i := 0; i < 6; i++ {
		g.RecordCall(CostRead)
	}

	const callers = 8
	start := time.Now()
	var wg sync.WaitGroup
	elapsed := make([]time.Duration, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := g.Admit(ctx); err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			elapsed[i] = time.Since(start)
		}(i)
	}
	wg.Wait()

	// Every caller waits out the same blockStart + blockDuration deadline.
	// If cool-downs stacked, later callers would wait multiples of block.
	for i, e := range elapsed {
		if e < block {
			t.Errorf("caller %d admitted after %v, before the cool-down", i, e)
		}
		if e > 3*block {
			t.Errorf("caller %d waited %v, cool-downs appear to have stacked", i, e)
		}
	}
}

func TestGovernorForceBlock(t *testing.T) {
	t.Parallel()

	g := testGovernor(100, time.Minute, 50*time.Millisecond)
	g.ForceBlock()
	if !g.Blocked() {
		t.Fatal("ForceBlock did not block")
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Admit(ctx); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("forced block did not delay admission")
	}
}

func TestGovernorForceBlockKeepsOriginalStart(t *testing.T) {
	t.Parallel()

	g := testGovernor(100, time.Minute, time.Hour)
	g.ForceBlock()
	first := g.blockStart

	time.Sleep(5 * time.Millisecond)
	g.ForceBlock()
	if !g.blockStart.Equal(first) {
		t.Error("repeated ForceBlock moved the block start; cool-down must not extend")
	}
}

func TestGovernorWindowDecay(t *testing.T) {
	t.Parallel()

	g := testGovernor(5, 30*time.Millisecond, time.Minute)
	for i := 0; i < 6; i++ {
		g.RecordCall(CostRead)
	}
	if got := g.WindowCost(); got != 6 {
		t.Fatalf("window cost = %v, want 6", got)
	}

	time.Sleep(40 * time.Millisecond)
	if got := g.WindowCost(); got != 0 {
		t.Errorf("window cost after decay = %v, want 0", got)
	}

	// Decayed entries no longer count toward admission.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.Admit(ctx); err != nil {
		t.Fatalf("Admit after decay: %v", err)
	}
	if g.Blocked() {
		t.Error("governor blocked on fully decayed window")
	}
}

func TestGovernorWriteCost(t *testing.T) {
	t.Parallel()

	g := testGovernor(10, time.Minute, time.Minute)
	g.RecordCall(CostWrite)
	g.RecordCall(CostWrite)
	if got := g.WindowCost(); got != 6 {
		t.Errorf("window cost = %v, want 6 (two writes at weight 3)", got)
	}
}

func TestGovernorAdmitContextCancelled(t *testing.T) {
	t.Parallel()

	g := testGovernor(100, time.Minute, time.Hour)
	g.ForceBlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Admit(ctx); err != context.DeadlineExceeded {
		t.Errorf("Admit during block with cancelled context = %v, want DeadlineExceeded", err)
	}
	if !g.Blocked() {
		t.Error("cancellation must not reopen the governor")
	}
}

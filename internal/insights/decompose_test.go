// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package insights

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func metricList(n int) []string {
	metrics := make([]string, n)
	for i := range metrics {
		metrics[i] = fmt.Sprintf("m%d", i+1)
	}
	return metrics
}

func TestDecomposeFanOut(t *testing.T) {
	t.Parallel()

	req := FetchRequest{
		AccountIDs: []string{"act_1"},
		Breakdowns: [][]string{{"age", "gender"}, {"country", "region"}},
		Periods:    []string{PeriodDaily, PeriodLifetime},
		Metrics:    metricList(120),
	}

	leaves, err := Decompose(req, 50)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	// 2 breakdown combos x 2 periods x 3 metric chunks (50+50+20).
	if len(leaves) != 12 {
		t.Fatalf("got %d leaves, want 12", len(leaves))
	}

	for i, leaf := range leaves {
		if leaf.AccountID != "act_1" {
			t.Errorf("leaf %d account = %s", i, leaf.AccountID)
		}
		if len(leaf.Metrics) == 0 || len(leaf.Metrics) > 50 {
			t.Errorf("leaf %d has %d metrics, want 1..50", i, len(leaf.Metrics))
		}
		if leaf.Period != PeriodDaily && leaf.Period != PeriodLifetime {
			t.Errorf("leaf %d period = %s", i, leaf.Period)
		}
		if len(leaf.Breakdowns) != 2 {
			t.Errorf("leaf %d breakdowns = %v", i, leaf.Breakdowns)
		}
	}
}

func TestDecomposeDeterministic(t *testing.T) {
	t.Parallel()

	req := FetchRequest{
		AccountIDs: []string{"act_2", "act_1"},
		Breakdowns: [][]string{{"age"}, {"country"}},
		Periods:    []string{PeriodLifetime, PeriodDaily},
		Metrics:    metricList(75),
	}

	first, err := Decompose(req, 30)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	second, err := Decompose(req, 30)
	if err != nil {
		t.Fatalf("Decompose again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("decomposition is not deterministic")
	}
}

func TestDecomposeSplitsAccountsFirst(t *testing.T) {
	t.Parallel()

	req := FetchRequest{
		AccountIDs: []string{"act_1", "act_2", "act_3"},
		Breakdowns: [][]string{{"age"}},
		Periods:    []string{PeriodDaily},
		Metrics:    metricList(5),
	}
	leaves, err := Decompose(req, 50)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(leaves) != 3 {
		t.Fatalf("got %d leaves, want 3", len(leaves))
	}
	// Account order is preserved.
	for i, want := range []string{"act_1", "act_2", "act_3"} {
		if leaves[i].AccountID != want {
			t.Errorf("leaf %d account = %s, want %s", i, leaves[i].AccountID, want)
		}
	}
}

func TestDecomposeMetricChunkOrder(t *testing.T) {
	t.Parallel()

	req := FetchRequest{
		AccountIDs: []string{"act_1"},
		Breakdowns: [][]string{{"age"}},
		Periods:    []string{PeriodDaily},
		Metrics:    []string{"a", "b", "c", "d", "e"},
	}
	leaves, err := Decompose(req, 2)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	if len(leaves) != len(want) {
		t.Fatalf("got %d leaves, want %d", len(leaves), len(want))
	}
	for i := range want {
		if !reflect.DeepEqual(leaves[i].Metrics, want[i]) {
			t.Errorf("chunk %d = %v, want %v; chunking must not reorder", i, leaves[i].Metrics, want[i])
		}
	}
}

func TestDecomposeSingleLeafPassthrough(t *testing.T) {
	t.Parallel()

	req := FetchRequest{
		AccountIDs: []string{"act_1"},
		Breakdowns: [][]string{{"age", "gender"}},
		Periods:    []string{PeriodLifetime},
		Metrics:    []string{"spend"},
	}
	leaves, err := Decompose(req, 50)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(leaves) != 1 {
		t.Fatalf("got %d leaves, want 1", len(leaves))
	}
	if leaves[0].Period != PeriodLifetime || len(leaves[0].Metrics) != 1 {
		t.Errorf("unexpected leaf %+v", leaves[0])
	}
}

func TestDecomposeAppliesDefaults(t *testing.T) {
	t.Parallel()

	leaves, err := Decompose(FetchRequest{AccountIDs: []string{"act_1"}}, 50)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(leaves) < 4 {
		t.Fatalf("got %d leaves; default breakdowns and periods alone give at least 4", len(leaves))
	}
	periods := map[string]bool{}
	for _, leaf := range leaves {
		periods[leaf.Period] = true
	}
	if !periods[PeriodDaily] || !periods[PeriodLifetime] {
		t.Errorf("default periods missing: %v", periods)
	}
}

func TestDecomposeRejectsMalformed(t *testing.T) {
	t.Parallel()

	var decompErr *DecompositionError

	if _, err := Decompose(FetchRequest{}, 50); !errors.As(err, &decompErr) {
		t.Errorf("empty account set error = %v, want DecompositionError", err)
	}
	if _, err := Decompose(FetchRequest{AccountIDs: []string{""}}, 50); !errors.As(err, &decompErr) {
		t.Errorf("empty account id error = %v, want DecompositionError", err)
	}
	req := FetchRequest{AccountIDs: []string{"act_1"}, Periods: []string{"weekly"}}
	if _, err := Decompose(req, 50); !errors.As(err, &decompErr) {
		t.Errorf("unknown period error = %v, want DecompositionError", err)
	}
	if _, err := Decompose(FetchRequest{AccountIDs: []string{"act_1"}}, 0); !errors.As(err, &decompErr) {
		t.Errorf("zero chunk size error = %v, want DecompositionError", err)
	}
}

// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

// Package insights decomposes one logical fetch request into narrow leaf
// API calls that respect platform rate and size limits, executes them with
// bounded parallelism, and stores results into per-(period, breakdowns)
// tables.
package insights

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/adscope/internal/schema"
)

// Reporting periods.
const (
	PeriodDaily    = "daily"
	PeriodLifetime = "lifetime"
)

// DefaultBreakdowns are the breakdown combinations collected when a
// request names none.
func DefaultBreakdowns() [][]string {
	return [][]string{
		{"age", "gender"},
		{"country", "region"},
	}
}

// DefaultPeriods are the periods collected when a request names none.
func DefaultPeriods() []string {
	return []string{PeriodDaily, PeriodLifetime}
}

// FetchRequest is one logical extraction: the cartesian product of
// accounts, breakdown combinations, periods, and metrics.
type FetchRequest struct {
	AccountIDs []string   `json:"account_ids"`
	Breakdowns [][]string `json:"breakdowns,omitempty"`
	Periods    []string   `json:"periods,omitempty"`
	Metrics    []string   `json:"metrics,omitempty"`
}

// LeafRequest is a fully narrowed request: one account, one breakdown
// combination, one period, and a metric set that fits one API call.
type LeafRequest struct {
	AccountID  string   `json:"account_id"`
	Breakdowns []string `json:"breakdowns"`
	Period     string   `json:"period"`
	Metrics    []string `json:"metrics"`
}

// DecompositionError marks a malformed FetchRequest.
type DecompositionError struct {
	Reason string
}

func (e *DecompositionError) Error() string {
	return "decomposition error: " + e.Reason
}

// InsightRecord is one stored result row. ID is freshly generated per
// fetch, so re-running a leaf appends new rows instead of colliding with
// a prior partial success.
type InsightRecord struct {
	ID          string          `json:"id"`
	CollectedAt time.Time       `json:"collected_at"`
	AccountID   string          `json:"account_id"`
	AdID        string          `json:"ad_id"`
	Table       string          `json:"table"`
	Payload     json.RawMessage `json:"payload"`
}

// LeafFailure reports one failed leaf without aborting its siblings.
type LeafFailure struct {
	Leaf LeafRequest `json:"leaf"`
	Err  error       `json:"-"`
}

func (f *LeafFailure) Error() string {
	return fmt.Sprintf("leaf account=%s period=%s breakdowns=%v metrics=%d: %v",
		f.Leaf.AccountID, f.Leaf.Period, f.Leaf.Breakdowns, len(f.Leaf.Metrics), f.Err)
}

func (f *LeafFailure) Unwrap() error {
	return f.Err
}

// withDefaults fills the optional dimensions of a request. Metrics default
// to the full registry.
func withDefaults(req FetchRequest) FetchRequest {
	if len(req.Breakdowns) == 0 {
		req.Breakdowns = DefaultBreakdowns()
	}
	if len(req.Periods) == 0 {
		req.Periods = DefaultPeriods()
	}
	if len(req.Metrics) == 0 {
		req.Metrics = schema.MetricNames()
	}
	return req
}

// validate rejects requests decomposition cannot narrow.
func validate(req FetchRequest) error {
	if len(req.AccountIDs) == 0 {
		return &DecompositionError{Reason: "empty account set"}
	}
	for _, id := range req.AccountIDs {
		if id == "" {
			return &DecompositionError{Reason: "empty account id"}
		}
	}
	for _, p := range req.Periods {
		if p != PeriodDaily && p != PeriodLifetime {
			return &DecompositionError{Reason: fmt.Sprintf("unknown period %q", p)}
		}
	}
	for _, combo := range req.Breakdowns {
		if len(combo) == 0 {
			return &DecompositionError{Reason: "empty breakdown combination"}
		}
	}
	return nil
}

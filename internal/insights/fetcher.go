// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

/*
fetcher.go - Leaf Execution

A leaf request runs in three steps: provision the destination table,
resolve the account's ads (insights are keyed by ad id, not account id),
then fetch one metric chunk per ad and append the rows.

Execution is fail-soft across leaves: one leaf's failure never aborts its
siblings. All failures are collected and surfaced to the caller next to
the successful records. Parallelism is bounded separately at the leaf
level and at the per-ad level, so the two never multiply into an
unbounded number of in-flight calls.
*/
package insights

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/adscope/internal/config"
	"github.com/tomtom215/adscope/internal/database"
	"github.com/tomtom215/adscope/internal/logging"
	"github.com/tomtom215/adscope/internal/metrics"
	"github.com/tomtom215/adscope/internal/remote"
	"github.com/tomtom215/adscope/internal/schema"
)

// TableStore is the storage surface leaf execution writes through.
// Implemented by database.Provisioner.
type TableStore interface {
	EnsureTable(ctx context.Context, name string, columns []schema.Column) error
	Insert(ctx context.Context, name string, record map[string]interface{}) error
}

// Event is one element of the fetch result stream: exactly one of Record
// or Failure is set.
type Event struct {
	Record  *InsightRecord
	Failure *LeafFailure
}

// Fetcher executes decomposed fetch requests.
type Fetcher struct {
	api         remote.GraphAPI
	store       TableStore
	maxMetrics  int
	concurrency int
}

// NewFetcher creates a fetcher with the given decomposition tuning.
func NewFetcher(api remote.GraphAPI, store TableStore, cfg config.DecomposeConfig) *Fetcher {
	maxMetrics := cfg.MaxMetricsPerCall
	if maxMetrics <= 0 {
		maxMetrics = 50
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Fetcher{
		api:         api,
		store:       store,
		maxMetrics:  maxMetrics,
		concurrency: concurrency,
	}
}

// FetchInsights decomposes the request and executes every leaf, streaming
// records and leaf failures as they happen. The stream closes after all
// leaves settle. Decomposition errors fail the call up front.
func (f *Fetcher) FetchInsights(ctx context.Context, req FetchRequest, token string) (<-chan Event, error) {
	leaves, err := Decompose(req, f.maxMetrics)
	if err != nil {
		return nil, err
	}

	logger := logging.Ctx(ctx)
	logger.Info().
		Int("leaves", len(leaves)).
		Int("accounts", len(req.AccountIDs)).
		Msg("Fetch request decomposed")

	events := make(chan Event, 64)
	go func() {
		defer close(events)

		var g errgroup.Group
		g.SetLimit(f.concurrency)
		for _, leaf := range leaves {
			leaf := leaf
			g.Go(func() error {
				records, err := f.executeLeaf(ctx, leaf, token)
				if err != nil {
					emit(ctx, events, Event{Failure: &LeafFailure{Leaf: leaf, Err: err}})
					return nil
				}
				for i := range records {
					emit(ctx, events, Event{Record: &records[i]})
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
	return events, nil
}

// Collect drains FetchInsights into slices, for callers that do not need
// streaming.
func (f *Fetcher) Collect(ctx context.Context, req FetchRequest, token string) ([]InsightRecord, []LeafFailure, error) {
	events, err := f.FetchInsights(ctx, req, token)
	if err != nil {
		return nil, nil, err
	}
	var records []InsightRecord
	var failures []LeafFailure
	for ev := range events {
		switch {
		case ev.Record != nil:
			records = append(records, *ev.Record)
		case ev.Failure != nil:
			failures = append(failures, *ev.Failure)
		}
	}
	return records, failures, ctx.Err()
}

// ExecuteLeaf runs one leaf in isolation, for deferred-job workers that
// consume decomposed leaves from a queue instead of running them in-process.
func (f *Fetcher) ExecuteLeaf(ctx context.Context, leaf LeafRequest, token string) ([]InsightRecord, error) {
	return f.executeLeaf(ctx, leaf, token)
}

// executeLeaf runs one leaf to completion and returns its stored records.
func (f *Fetcher) executeLeaf(ctx context.Context, leaf LeafRequest, token string) ([]InsightRecord, error) {
	start := time.Now()

	columns, err := schema.InsightColumns(leaf.Metrics, leaf.Breakdowns)
	if err != nil {
		metrics.LeafRequests.WithLabelValues("config_error").Inc()
		return nil, err
	}
	table := database.TableNameFor(leaf.Period, leaf.Breakdowns)
	if err := f.store.EnsureTable(ctx, table, columns); err != nil {
		metrics.LeafRequests.WithLabelValues("store_error").Inc()
		return nil, err
	}

	ads, err := f.api.ListAds(ctx, token, leaf.AccountID)
	if err != nil {
		metrics.LeafRequests.WithLabelValues("api_error").Inc()
		return nil, fmt.Errorf("resolve ads: %w", err)
	}

	daily := leaf.Period == PeriodDaily
	columnIndex := indexColumns(columns)

	var mu sync.Mutex
	var records []InsightRecord

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, ad := range ads {
		ad := ad
		g.Go(func() error {
			rows, err := f.api.Insights(gctx, token, ad.ID, leaf.Metrics, leaf.Breakdowns, daily)
			if err != nil {
				return fmt.Errorf("ad %s: %w", ad.ID, err)
			}
			for _, row := range rows {
				record, err := f.storeRow(gctx, leaf, table, columnIndex, ad.ID, row)
				if err != nil {
					return fmt.Errorf("ad %s: %w", ad.ID, err)
				}
				mu.Lock()
				records = append(records, record)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.LeafRequests.WithLabelValues("api_error").Inc()
		return nil, err
	}

	metrics.LeafRequests.WithLabelValues("ok").Inc()
	metrics.LeafDuration.Observe(time.Since(start).Seconds())
	logger := logging.Ctx(ctx)
	logger.Debug().
		Str("account", leaf.AccountID).
		Str("table", table).
		Int("ads", len(ads)).
		Int("records", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("Leaf completed")
	return records, nil
}

// storeRow tags one result row with a fresh id and timestamp, appends it
// to the table, and returns the record.
func (f *Fetcher) storeRow(ctx context.Context, leaf LeafRequest, table string, columnIndex map[string]schema.Column, adID string, row json.RawMessage) (InsightRecord, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(row, &payload); err != nil {
		return InsightRecord{}, fmt.Errorf("decode insight row: %w", err)
	}

	id := uuid.NewString()
	collectedAt := time.Now().UTC()

	record := map[string]interface{}{
		"insight_id":   id,
		"collected_at": collectedAt,
	}
	// Only declared columns land in the table; everything else the
	// platform sends stays in the event payload.
	for key, value := range payload {
		col, ok := columnIndex[key]
		if !ok {
			continue
		}
		record[key] = coerceValue(col, value)
	}

	if err := f.store.Insert(ctx, table, record); err != nil {
		return InsightRecord{}, err
	}

	return InsightRecord{
		ID:          id,
		CollectedAt: collectedAt,
		AccountID:   leaf.AccountID,
		AdID:        adID,
		Table:       table,
		Payload:     row,
	}, nil
}

// indexColumns maps writable column names to their descriptors, skipping
// the identity columns the fetcher fills itself.
func indexColumns(columns []schema.Column) map[string]schema.Column {
	index := make(map[string]schema.Column, len(columns))
	for _, col := range columns {
		if col.Name == "insight_id" || col.Name == "collected_at" {
			continue
		}
		index[col.Name] = col
	}
	return index
}

// coerceValue converts the platform's stringly-typed numbers into the
// column's native type when possible.
func coerceValue(col schema.Column, v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch col.Kind {
	case schema.KindInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case schema.KindFloat:
		if fv, err := strconv.ParseFloat(s, 64); err == nil {
			return fv
		}
	}
	return v
}

// emit delivers one event unless the consumer is gone.
func emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/adscope/internal/config"
	"github.com/tomtom215/adscope/internal/credentials"
	"github.com/tomtom215/adscope/internal/insights"
	"github.com/tomtom215/adscope/internal/logging"
	"github.com/tomtom215/adscope/internal/remote"
	"github.com/tomtom215/adscope/internal/schema"
)

type stubGraph struct{}

func (stubGraph) Call(ctx context.Context, path, token string, params url.Values) ([]json.RawMessage, error) {
	return nil, nil
}

func (stubGraph) ListAdAccounts(ctx context.Context, token string) ([]remote.AdAccount, error) {
	return nil, nil
}

func (stubGraph) ListAds(ctx context.Context, token, accountID string) ([]remote.Ad, error) {
	return []remote.Ad{{ID: "ad_1", AccountID: accountID}}, nil
}

func (stubGraph) Insights(ctx context.Context, token, adID string, fields, breakdowns []string, daily bool) ([]json.RawMessage, error) {
	return []json.RawMessage{json.RawMessage(`{"impressions":"5","age":"25-34"}`)}, nil
}

type stubStore struct{}

func (stubStore) EnsureTable(ctx context.Context, name string, columns []schema.Column) error {
	return nil
}

func (stubStore) Insert(ctx context.Context, name string, record map[string]interface{}) error {
	return nil
}

type stubPublisher struct {
	jobs []insights.LeafRequest
}

func (p *stubPublisher) PublishLeaf(appID string, leaf insights.LeafRequest) (string, error) {
	p.jobs = append(p.jobs, leaf)
	return "job-" + leaf.Period, nil
}

func testServer(t *testing.T, publisher LeafPublisher) *Server {
	t.Helper()

	db, err := credentials.OpenBadger("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := credentials.NewBadgerStore(db)
	err = store.Save(context.Background(), &credentials.Credential{
		AppID:       "app-1",
		UserID:      "u1",
		AccessToken: "tok",
		AdAccounts:  []string{"act_1"},
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("save credential: %v", err)
	}
	selector, err := credentials.NewSelector(store, credentials.PolicyFirst)
	if err != nil {
		t.Fatalf("selector: %v", err)
	}

	cfg := config.Default()
	cfg.Graph.AppID = "app-1"
	fetcher := insights.NewFetcher(stubGraph{}, stubStore{}, cfg.Decompose)
	return NewServer(cfg, fetcher, selector, publisher)
}

func postFetch(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/insights/fetch", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := testServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestFetchEndpoint(t *testing.T) {
	t.Parallel()

	s := testServer(t, nil)
	rec := postFetch(t, s, `{"account_ids":["act_1"],"breakdowns":[["age","gender"]],"periods":["daily"],"metrics":["impressions"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp fetchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Records != 1 {
		t.Errorf("records = %d, want 1", resp.Records)
	}
	if len(resp.Failures) != 0 {
		t.Errorf("unexpected failures: %+v", resp.Failures)
	}
}

func TestRequestSeedsCorrelationID(t *testing.T) {
	t.Parallel()

	var fromContext string
	handler := correlationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = logging.CorrelationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req = req.WithContext(context.WithValue(req.Context(), chimiddleware.RequestIDKey, "req-42"))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if fromContext != "req-42" {
		t.Errorf("correlation id = %q, want the chi request id", fromContext)
	}

	// Without an upstream request ID the middleware generates one, so log
	// lines are never left uncorrelated.
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if fromContext == "" {
		t.Error("correlation id missing when no request id was set")
	}
}

func TestFetchValidation(t *testing.T) {
	t.Parallel()

	s := testServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing accounts", `{}`},
		{"empty accounts", `{"account_ids":[]}`},
		{"blank account id", `{"account_ids":[""]}`},
		{"bad period", `{"account_ids":["act_1"],"periods":["weekly"]}`},
		{"not json", `{{{`},
	}
	for _, tt := range tests {
		if rec := postFetch(t, s, tt.body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestFetchUnknownAccount(t *testing.T) {
	t.Parallel()

	s := testServer(t, nil)
	rec := postFetch(t, s, `{"account_ids":["act_unreachable"],"metrics":["impressions"]}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 when nothing succeeds", rec.Code)
	}
	var resp fetchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Failures) != 1 {
		t.Errorf("failures = %+v, want one credential failure", resp.Failures)
	}
}

func TestFetchDeferred(t *testing.T) {
	t.Parallel()

	pub := &stubPublisher{}
	s := testServer(t, pub)
	rec := postFetch(t, s, `{"account_ids":["act_1"],"breakdowns":[["age"]],"periods":["daily","lifetime"],"metrics":["impressions"],"defer":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", rec.Code, rec.Body.String())
	}
	if len(pub.jobs) != 2 {
		t.Errorf("published %d jobs, want 2 (one per period)", len(pub.jobs))
	}
}

func TestFetchDeferredWithoutQueue(t *testing.T) {
	t.Parallel()

	s := testServer(t, nil)
	rec := postFetch(t, s, `{"account_ids":["act_1"],"defer":true}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

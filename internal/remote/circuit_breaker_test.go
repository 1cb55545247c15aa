// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/adscope/internal/config"
)

func testBreakerClient(t *testing.T, handler http.Handler) *BreakerClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	governor := NewRateGovernor(config.GovernorConfig{
		DecayWindow:   time.Minute,
		MaxScore:      1000,
		BlockDuration: time.Minute,
	})
	client := NewClient(&config.GraphConfig{
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
	}, governor)
	return NewBreakerClient(client)
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	t.Parallel()

	bc := testBreakerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"n":1}]}`)
	}))

	rows, err := bc.Call(context.Background(), "/act_1/ads", "tok", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows, want 1", len(rows))
	}
}

func TestBreakerOpensOnSustainedFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	bc := testBreakerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"unknown","type":"OAuthException","code":1}}`)
	}))

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := bc.Call(ctx, "/act_1/ads", "tok", nil); err == nil {
			t.Fatalf("call %d unexpectedly succeeded", i)
		}
	}

	// The breaker is open now; further calls are rejected without touching
	// the network and surface as transient errors.
	before := calls
	_, err := bc.Call(ctx, "/act_1/ads", "tok", nil)
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Kind != KindTransient {
		t.Fatalf("rejected call error = %v, want transient APIError", err)
	}
	if !strings.Contains(apiErr.Message, "circuit breaker") {
		t.Errorf("message = %q, want circuit breaker rejection", apiErr.Message)
	}
	if calls != before {
		t.Errorf("open breaker still issued %d HTTP calls", calls-before)
	}
}

func TestBreakerIgnoresDefinitiveErrors(t *testing.T) {
	t.Parallel()

	bc := testBreakerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"(#10) denied","type":"OAuthException","code":10}}`)
	}))

	// Permission errors are definitive platform answers, not health
	// failures; they must never trip the breaker.
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := bc.Call(ctx, "/act_1/ads", "tok", nil)
		apiErr, ok := AsAPIError(err)
		if !ok {
			t.Fatalf("call %d: %v", i, err)
		}
		if apiErr.Kind != KindPermissionDenied {
			t.Fatalf("call %d surfaced %s; breaker must stay closed on definitive errors", i, apiErr.Kind)
		}
	}
}

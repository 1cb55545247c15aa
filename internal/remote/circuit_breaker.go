// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/adscope/internal/logging"
	"github.com/tomtom215/adscope/internal/metrics"
)

// BreakerClient wraps a Client with a circuit breaker so a misbehaving or
// unreachable platform fails fast instead of tying up leaf workers.
//
// The breaker guards failure cascades only; rate limiting stays with the
// RateGovernor inside the wrapped client. Rejected calls surface as
// transient errors so the leaf retry policy treats them uniformly.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewBreakerClient creates a circuit-breaking GraphAPI implementation.
// The circuit opens after a 60% failure rate over at least 10 requests,
// stays open for 2 minutes, and allows 3 probes in half-open state.
func NewBreakerClient(client *Client) *BreakerClient {
	cbName := "graph-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", breakerStateString(from)).
				Str("to", breakerStateString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateFloat(to))
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Definitive API answers are not platform health failures:
			// a permission or validation error means the platform is up.
			if apiErr, ok := AsAPIError(err); ok {
				return apiErr.Kind == KindPermissionDenied || apiErr.Kind == KindInvalidRequest
			}
			return false
		},
	})

	return &BreakerClient{client: client, cb: cb, name: cbName}
}

// execute wraps one call with the breaker and records outcome metrics.
func (b *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			return nil, &APIError{Kind: KindTransient, Message: fmt.Sprintf("circuit breaker: %v", err)}
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

// castResult type-casts a breaker result with error checking.
func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// Call issues a paginated call with circuit breaker protection.
func (b *BreakerClient) Call(ctx context.Context, path, token string, params url.Values) ([]json.RawMessage, error) {
	return castResult[[]json.RawMessage](b.execute(func() (interface{}, error) {
		return b.client.Call(ctx, path, token, params)
	}))
}

// ListAdAccounts lists reachable ad accounts with circuit breaker protection.
func (b *BreakerClient) ListAdAccounts(ctx context.Context, token string) ([]AdAccount, error) {
	return castResult[[]AdAccount](b.execute(func() (interface{}, error) {
		return b.client.ListAdAccounts(ctx, token)
	}))
}

// ListAds lists an account's ads with circuit breaker protection.
func (b *BreakerClient) ListAds(ctx context.Context, token, accountID string) ([]Ad, error) {
	return castResult[[]Ad](b.execute(func() (interface{}, error) {
		return b.client.ListAds(ctx, token, accountID)
	}))
}

// Insights fetches one metric chunk with circuit breaker protection.
func (b *BreakerClient) Insights(ctx context.Context, token, adID string, fields, breakdowns []string, daily bool) ([]json.RawMessage, error) {
	return castResult[[]json.RawMessage](b.execute(func() (interface{}, error) {
		return b.client.Insights(ctx, token, adID, fields, breakdowns, daily)
	}))
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func breakerStateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

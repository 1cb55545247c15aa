// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

/*
client.go - Paginating Graph API Client

One logical Call() issues a GET against the platform, follows cursor-based
pagination to completion, and returns the concatenated rows. Every HTTP
attempt is gated through the RateGovernor and paced by a steady-state
limiter; the request cost is recorded at issue time.

Pagination:
  - Envelope responses carry {data, paging}; rows accumulate in fetch order.
  - The platform signals "no more pages" with a reserved cursor value. The
    sentinel must be matched exactly: following it as a normal cursor loops
    forever, because the platform keeps answering with the same cursor.
  - Bare (non-envelope) responses are returned as a single-row result.

Failure handling:
  - Non-success statuses are parsed into *APIError; partial data is never
    returned alongside an error.
  - A server-observed rate limit force-blocks the governor; the retry that
    follows waits out the cool-down at admission before going back out.
  - Transient failures retry with exponential backoff up to MaxRetries;
    rate-limited and transient errors surface only once retries run out.
*/
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/adscope/internal/config"
	"github.com/tomtom215/adscope/internal/logging"
	"github.com/tomtom215/adscope/internal/metrics"
)

// emptyCursor is the platform's reserved cursor value signalling that the
// next page is empty. Checked by exact match.
const emptyCursor = "MAZDZD"

// maxErrorBodySize caps how much of an error response body is read back
// for diagnostics.
const maxErrorBodySize = 64 * 1024 // 64KB

// GraphAPI is the remote surface the insights pipeline consumes. It is
// implemented by Client and by BreakerClient, and by mocks in tests.
type GraphAPI interface {
	// Call issues one logical GET against path and follows pagination to
	// completion, returning all rows in fetch order.
	Call(ctx context.Context, path, token string, params url.Values) ([]json.RawMessage, error)

	// ListAdAccounts returns the ad accounts reachable with the token,
	// both personal and business-owned.
	ListAdAccounts(ctx context.Context, token string) ([]AdAccount, error)

	// ListAds returns the ads under one ad account. Insights are keyed by
	// ad id, so every leaf resolves ads before fetching.
	ListAds(ctx context.Context, token, accountID string) ([]Ad, error)

	// Insights fetches one metric chunk for one ad in one period under one
	// breakdown combination.
	Insights(ctx context.Context, token, adID string, fields, breakdowns []string, daily bool) ([]json.RawMessage, error)
}

// Client is the production GraphAPI implementation.
// Safe for concurrent use; all mutable state lives in the governor and pacer.
type Client struct {
	baseURL        string
	http           *http.Client
	governor       *RateGovernor
	pace           *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a Graph API client gated by the given governor.
func NewClient(cfg *config.GraphConfig, governor *RateGovernor) *Client {
	var pace *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		pace = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryBase := cfg.RetryBaseDelay
	if retryBase <= 0 {
		retryBase = time.Second
	}
	return &Client{
		baseURL:        cfg.BaseURL,
		http:           &http.Client{Timeout: cfg.Timeout},
		governor:       governor,
		pace:           pace,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBase,
	}
}

// envelope is the paginated response wrapper. Data stays raw so the check
// for a bare (non-envelope) body is a nil test, not a re-parse.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Paging *paging         `json:"paging"`
}

type paging struct {
	Cursors struct {
		Before string `json:"before"`
		After  string `json:"after"`
	} `json:"cursors"`
	Next string `json:"next"`
}

// errorEnvelope is the platform's non-success response body.
type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode"`
	TraceID string `json:"fbtrace_id"`
}

// Call implements GraphAPI. Pagination depth is unbounded by design; the
// decomposition layer bounds the work instead.
func (c *Client) Call(ctx context.Context, path, token string, params url.Values) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	after := ""
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := c.fetchPage(ctx, path, token, params, after)
		if err != nil {
			return nil, err
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", path, err)
		}

		if env.Data == nil {
			// Bare value with no pagination envelope.
			if pages > 0 {
				return nil, fmt.Errorf("%s: page %d lost its envelope mid-pagination", path, pages+1)
			}
			metrics.RemoteCallPages.WithLabelValues(path).Observe(1)
			return []json.RawMessage{body}, nil
		}

		var data []json.RawMessage
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", path, err)
		}
		rows = append(rows, data...)
		pages++

		if env.Paging == nil || env.Paging.Cursors.After == "" || env.Paging.Cursors.After == emptyCursor {
			break
		}
		after = env.Paging.Cursors.After
	}

	metrics.RemoteCallPages.WithLabelValues(path).Observe(float64(pages))
	return rows, nil
}

// fetchPage issues one HTTP attempt series (with retries) for a single page.
func (c *Client) fetchPage(ctx context.Context, path, token string, params url.Values, after string) ([]byte, error) {
	reqURL := c.buildURL(path, token, params, after)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryBaseDelay * time.Duration(1<<uint(attempt-1))
			logging.Debug().Str("path", path).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying graph call")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := c.attempt(ctx, path, reqURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if apiErr, ok := AsAPIError(err); ok && !apiErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%s: retries exhausted: %w", path, lastErr)
}

// attempt performs exactly one gated, paced HTTP exchange.
func (c *Client) attempt(ctx context.Context, path, reqURL string) ([]byte, error) {
	if err := c.governor.Admit(ctx); err != nil {
		return nil, err
	}
	if c.pace != nil {
		if err := c.pace.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	// Cost accrues when the request is issued, not when it completes.
	c.governor.RecordCall(CostRead)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveRemoteCall(path, "network_error", time.Since(start))
		metrics.RemoteCallErrors.WithLabelValues(path, string(KindTransient)).Inc()
		return nil, &APIError{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	metrics.ObserveRemoteCall(path, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, c.asAPIError(path, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindTransient, Message: fmt.Sprintf("read body: %v", err)}
	}
	return body, nil
}

// asAPIError parses a non-success response into an *APIError and reacts to
// server-observed throttling.
func (c *Client) asAPIError(path string, resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	apiErr := &APIError{
		Kind:       KindUnknown,
		Message:    fmt.Sprintf("http status %d", resp.StatusCode),
		HTTPStatus: resp.StatusCode,
	}

	var env errorEnvelope
	if readErr == nil && json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Type = env.Error.Type
		apiErr.Code = env.Error.Code
		apiErr.Subcode = env.Error.Subcode
		apiErr.Kind = classifyError(env.Error.Code, resp.StatusCode)
	} else if resp.StatusCode >= 500 {
		apiErr.Kind = KindTransient
	}

	if apiErr.Kind == KindRateLimited {
		logging.Warn().Str("path", path).Int("code", apiErr.Code).Msg("Platform reported rate limit, force-blocking governor")
		c.governor.ForceBlock()
	}

	metrics.RemoteCallErrors.WithLabelValues(path, string(apiErr.Kind)).Inc()
	return apiErr
}

// buildURL merges the access token, caller params, and pagination cursor.
func (c *Client) buildURL(path, token string, params url.Values, after string) string {
	merged := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			merged.Add(k, v)
		}
	}
	merged.Set("access_token", token)
	if after != "" {
		merged.Set("after", after)
	}
	return fmt.Sprintf("%s%s?%s", c.baseURL, path, merged.Encode())
}

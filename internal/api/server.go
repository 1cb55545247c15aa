// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

// Package api exposes the HTTP trigger surface: health, metrics, and the
// fetch endpoint that kicks off insight collection either in-process or
// as deferred leaf jobs on the queue.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/adscope/internal/config"
	"github.com/tomtom215/adscope/internal/credentials"
	"github.com/tomtom215/adscope/internal/insights"
	"github.com/tomtom215/adscope/internal/logging"
	"github.com/tomtom215/adscope/internal/queue"
)

// LeafPublisher enqueues leaves for deferred execution; nil when the
// queue is disabled.
type LeafPublisher interface {
	PublishLeaf(appID string, leaf insights.LeafRequest) (string, error)
}

// Server is the HTTP trigger surface.
type Server struct {
	cfg       *config.Config
	fetcher   *insights.Fetcher
	selector  *credentials.Selector
	publisher LeafPublisher
	validate  *validator.Validate
	http      *http.Server
}

// NewServer wires the router. publisher may be nil.
func NewServer(cfg *config.Config, fetcher *insights.Fetcher, selector *credentials.Selector, publisher LeafPublisher) *Server {
	s := &Server{
		cfg:       cfg,
		fetcher:   fetcher,
		selector:  selector,
		publisher: publisher,
		validate:  validator.New(),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(correlationID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.Timeout))
	r.Use(httprate.LimitByIP(cfg.Server.RequestsPerMinute, time.Minute))

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/v1/insights/fetch", s.handleFetch)

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// correlationID carries chi's request ID into the logging context, so
// every log line written while serving the request can be tied back to it.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chimiddleware.GetReqID(ctx)
		if id == "" {
			id = logging.GenerateCorrelationID()
		}
		next.ServeHTTP(w, r.WithContext(logging.ContextWithCorrelationID(ctx, id)))
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe serves until Shutdown.
func (s *Server) ListenAndServe() error {
	logging.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// fetchPayload is the request body of the fetch endpoint.
type fetchPayload struct {
	AccountIDs []string   `json:"account_ids" validate:"required,min=1,dive,required"`
	Breakdowns [][]string `json:"breakdowns,omitempty" validate:"omitempty,dive,min=1"`
	Periods    []string   `json:"periods,omitempty" validate:"omitempty,dive,oneof=daily lifetime"`
	Metrics    []string   `json:"metrics,omitempty" validate:"omitempty,dive,required"`
	Defer      bool       `json:"defer,omitempty"`
}

// leafFailureView serializes one leaf failure for the response.
type leafFailureView struct {
	Leaf  insights.LeafRequest `json:"leaf"`
	Error string               `json:"error"`
}

type fetchResponse struct {
	Records   int               `json:"records"`
	Failures  []leafFailureView `json:"failures,omitempty"`
	Deferred  int               `json:"deferred,omitempty"`
	JobIDs    []string          `json:"job_ids,omitempty"`
	Accounts  int               `json:"accounts"`
	RequestID string            `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleFetch runs (or defers) one fetch request. Each account resolves
// its own credential, so a request may span accounts owned by different
// users.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var payload fetchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.validate.Struct(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if payload.Defer {
		s.deferFetch(w, r, payload)
		return
	}

	resp := fetchResponse{
		Accounts:  len(payload.AccountIDs),
		RequestID: chimiddleware.GetReqID(r.Context()),
	}
	status := http.StatusOK

	for _, accountID := range payload.AccountIDs {
		cred, err := s.selector.ForAdAccount(r.Context(), s.cfg.Graph.AppID, accountID)
		if err != nil {
			if errors.Is(err, credentials.ErrNotFound) {
				resp.Failures = append(resp.Failures, leafFailureView{
					Leaf:  insights.LeafRequest{AccountID: accountID},
					Error: "no credential can reach this ad account",
				})
				continue
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		req := insights.FetchRequest{
			AccountIDs: []string{accountID},
			Breakdowns: payload.Breakdowns,
			Periods:    payload.Periods,
			Metrics:    payload.Metrics,
		}
		records, failures, err := s.fetcher.Collect(r.Context(), req, cred.AccessToken)
		if err != nil {
			var decompErr *insights.DecompositionError
			if errors.As(err, &decompErr) {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp.Records += len(records)
		for _, f := range failures {
			resp.Failures = append(resp.Failures, leafFailureView{Leaf: f.Leaf, Error: f.Err.Error()})
		}
	}

	if len(resp.Failures) > 0 && resp.Records == 0 {
		// Nothing succeeded; surface the partial-failure contract anyway
		// but with an error status.
		status = http.StatusBadGateway
	}
	logger := logging.Ctx(r.Context())
	logger.Info().
		Int("accounts", resp.Accounts).
		Int("records", resp.Records).
		Int("failures", len(resp.Failures)).
		Msg("Fetch request served")
	writeJSON(w, status, resp)
}

// deferFetch decomposes the request and enqueues each leaf as a durable job.
func (s *Server) deferFetch(w http.ResponseWriter, r *http.Request, payload fetchPayload) {
	if s.publisher == nil {
		writeError(w, http.StatusConflict, errors.New("deferred execution requires the queue to be enabled"))
		return
	}

	req := insights.FetchRequest{
		AccountIDs: payload.AccountIDs,
		Breakdowns: payload.Breakdowns,
		Periods:    payload.Periods,
		Metrics:    payload.Metrics,
	}
	leaves, err := insights.Decompose(req, s.cfg.Decompose.MaxMetricsPerCall)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp := fetchResponse{
		Accounts:  len(payload.AccountIDs),
		RequestID: chimiddleware.GetReqID(r.Context()),
	}
	for _, leaf := range leaves {
		jobID, err := s.publisher.PublishLeaf(s.cfg.Graph.AppID, leaf)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("enqueue leaf: %w", err))
			return
		}
		resp.JobIDs = append(resp.JobIDs, jobID)
	}
	resp.Deferred = len(resp.JobIDs)
	logger := logging.Ctx(r.Context())
	logger.Info().
		Int("accounts", resp.Accounts).
		Int("deferred", resp.Deferred).
		Msg("Fetch request deferred to queue")
	writeJSON(w, http.StatusAccepted, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Write response failed")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// ensure the concrete publisher satisfies the narrow interface.
var _ LeafPublisher = (*queue.Publisher)(nil)

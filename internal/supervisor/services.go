// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/adscope/internal/api"
	"github.com/tomtom215/adscope/internal/logging"
	"github.com/tomtom215/adscope/internal/queue"
)

// HTTPService adapts the API server to suture's Service interface.
type HTTPService struct {
	Server *api.Server
}

// Serve runs the server until ctx is cancelled, then drains it.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return suture.ErrDoNotRestart
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Server.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("HTTP shutdown failed")
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *HTTPService) String() string { return "http-server" }

// ConsumerService adapts the queue consumer to suture's Service interface.
type ConsumerService struct {
	Consumer *queue.Consumer
}

// Serve runs the router; suture restarts it on failure.
func (s *ConsumerService) Serve(ctx context.Context) error {
	return s.Consumer.Run(ctx)
}

func (s *ConsumerService) String() string { return "queue-consumer" }

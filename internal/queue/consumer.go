// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package queue

import (
	"context"
	"fmt"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/adscope/internal/config"
	"github.com/tomtom215/adscope/internal/logging"
	"github.com/tomtom215/adscope/internal/metrics"

	"github.com/goccy/go-json"
)

// Executor runs one dequeued leaf job. Permanent errors (permission,
// invalid request) should be swallowed by the executor after logging;
// returned errors trigger the router's retry middleware.
type Executor func(ctx context.Context, job LeafJob) error

// Consumer runs leaf jobs from the broker through a Watermill router.
type Consumer struct {
	router *message.Router
}

// NewNATSSubscriber creates a JetStream pull subscriber in the worker
// queue group, so multiple workers share the stream.
func NewNATSSubscriber(cfg *config.QueueConfig) (message.Subscriber, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.Timeout(10 * time.Second),
		natsgo.ReconnectWait(time.Second),
		natsgo.MaxReconnects(-1),
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		QueueGroupPrefix: cfg.QueueGroup,
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: cfg.DurableName,
		},
	}, NewLogger())
	if err != nil {
		return nil, fmt.Errorf("create queue subscriber: %w", err)
	}
	return sub, nil
}

// NewConsumer builds the router around the subscriber. Handler panics are
// recovered and failed jobs retry with backoff before being dropped.
func NewConsumer(sub message.Subscriber, cfg *config.QueueConfig, exec Executor) (*Consumer, error) {
	logger := NewLogger()

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create queue router: %w", err)
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      cfg.RetryCount,
			InitialInterval: cfg.RetryInterval,
			Multiplier:      2.0,
			Logger:          logger,
		}.Middleware,
	)

	router.AddNoPublisherHandler("leaf-worker", cfg.Topic, sub, func(msg *message.Message) error {
		var job LeafJob
		if err := json.Unmarshal(msg.Payload, &job); err != nil {
			// Undecodable jobs can never succeed; ack and drop.
			logging.Error().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable leaf job")
			return nil
		}

		if err := exec(msg.Context(), job); err != nil {
			metrics.QueueConsumes.WithLabelValues("error").Inc()
			logging.Warn().Err(err).Str("job_id", job.ID).Str("account", job.Leaf.AccountID).Msg("Leaf job failed")
			return err
		}
		metrics.QueueConsumes.WithLabelValues("ok").Inc()
		return nil
	})

	return &Consumer{router: router}, nil
}

// Run serves jobs until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.router.Run(ctx)
}

// Running reports readiness; closed until the router has started.
func (c *Consumer) Running() <-chan struct{} {
	return c.router.Running()
}

// Close stops the router.
func (c *Consumer) Close() error {
	return c.router.Close()
}

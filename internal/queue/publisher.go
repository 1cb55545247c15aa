// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package queue

import (
	"fmt"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/adscope/internal/config"
	"github.com/tomtom215/adscope/internal/insights"
	"github.com/tomtom215/adscope/internal/metrics"
)

// LeafJob is one deferred leaf execution. The job carries the app id so
// the worker can resolve a credential for the leaf's account at execution
// time; tokens never transit the broker.
type LeafJob struct {
	ID     string               `json:"id"`
	AppID  string               `json:"app_id"`
	Leaf   insights.LeafRequest `json:"leaf"`
	Queued time.Time            `json:"queued"`
}

// Publisher enqueues leaf jobs.
type Publisher struct {
	pub   message.Publisher
	topic string
}

// NewNATSPublisher creates a JetStream-backed publisher.
func NewNATSPublisher(cfg *config.QueueConfig) (*Publisher, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.Timeout(10 * time.Second),
		natsgo.ReconnectWait(time.Second),
		natsgo.MaxReconnects(-1),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, NewLogger())
	if err != nil {
		return nil, fmt.Errorf("create queue publisher: %w", err)
	}

	return NewPublisher(pub, cfg.Topic), nil
}

// NewPublisher wraps any Watermill publisher; tests use an in-process one.
func NewPublisher(pub message.Publisher, topic string) *Publisher {
	return &Publisher{pub: pub, topic: topic}
}

// PublishLeaf enqueues one leaf for deferred execution.
func (p *Publisher) PublishLeaf(appID string, leaf insights.LeafRequest) (string, error) {
	job := LeafJob{
		ID:     uuid.NewString(),
		AppID:  appID,
		Leaf:   leaf,
		Queued: time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal leaf job: %w", err)
	}

	msg := message.NewMessage(job.ID, payload)
	if err := p.pub.Publish(p.topic, msg); err != nil {
		metrics.QueuePublishes.WithLabelValues("error").Inc()
		return "", fmt.Errorf("publish leaf job: %w", err)
	}
	metrics.QueuePublishes.WithLabelValues("ok").Inc()
	return job.ID, nil
}

// Close releases the underlying publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}

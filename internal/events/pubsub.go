package events

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
	// ClientOptions are passed to the Pub/Sub client, e.g. an emulator endpoint.
	ClientOptions []option.ClientOption
}

// PubSubPublisher publishes events to a Pub/Sub topic. Messages are ordered
// by tour ID.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// NewPubSubPublisher creates a publisher for cfg.Topic.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	publisher := client.Publisher(cfg.Topic)
	publisher.EnableMessageOrdering = true

	return &PubSubPublisher{
		client:    client,
		publisher: publisher,
		topic:     cfg.Topic,
		logger:    cfg.Logger,
	}, nil
}

// Publish sends e and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, e Event) error {
	data, err := e.Encode()
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: e.TourID,
		Attributes: map[string]string{
			"type":    e.Type,
			"tour_id": e.TourID,
		},
	})

	id, err := result.Get(ctx)
	if err != nil {
		// A failed publish pauses its ordering key until resumed.
		p.publisher.ResumePublish(e.TourID)
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}

	p.logger.Debug().
		Str("message_id", id).
		Str("event_id", e.ID).
		Str("tour_id", e.TourID).
		Msg("event published")
	return nil
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

// LogPublisher writes events to the log. It is used when no topic is
// configured.
type LogPublisher struct {
	Logger zerolog.Logger
}

// Publish logs e.
func (p LogPublisher) Publish(_ context.Context, e Event) error {
	p.Logger.Info().
		Str("event_id", e.ID).
		Str("type", e.Type).
		Str("tour_id", e.TourID).
		Str("site_id", e.SiteID).
		Str("status", e.Status).
		Float64("progress", e.Progress).
		Bool("completed", e.Completed).
		Msg("tour event")
	return nil
}

// Close is a no-op.
func (LogPublisher) Close() error { return nil }

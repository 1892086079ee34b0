package worker

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/fieldtour/fieldtour/internal/events"
)

// Handler processes one decoded event.
type Handler interface {
	Handle(ctx context.Context, e events.Event) error
}

// EventConsumer receives tour events from a Pub/Sub subscription.
type EventConsumer struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	handler          Handler
	settings         ConsumerSettings
	logger           zerolog.Logger
}

// ConsumerConfig holds configuration for the event consumer.
type ConsumerConfig struct {
	ProjectID        string
	SubscriptionName string
	Handler          Handler
	Settings         ConsumerSettings
	Logger           zerolog.Logger
	// ClientOptions are passed to the Pub/Sub client, e.g. an emulator endpoint.
	ClientOptions []option.ClientOption
}

// NewEventConsumer creates a new event consumer.
func NewEventConsumer(ctx context.Context, cfg ConsumerConfig) (*EventConsumer, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	settings := cfg.Settings.withDefaults()
	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = settings.MaxOutstandingMessages
	subscriber.ReceiveSettings.MaxExtension = settings.MaxExtension

	return &EventConsumer{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		handler:          cfg.Handler,
		settings:         settings,
		logger:           cfg.Logger,
	}, nil
}

// Start processes messages until ctx is cancelled.
func (c *EventConsumer) Start(ctx context.Context) error {
	c.logger.Info().
		Str("subscription", c.subscriptionName).
		Msg("starting event consumer")

	return c.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		c.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (c *EventConsumer) Close() error {
	return c.client.Close()
}

func (c *EventConsumer) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := c.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	e, err := events.Decode(msg.Data)
	if err != nil {
		// Redelivery cannot fix a malformed payload.
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Ack()
		return
	}

	if e.Type != events.TypeStopTransitioned {
		logger.Warn().Str("type", e.Type).Msg("unknown event type")
		msg.Ack()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.settings.HandleTimeout)
	defer cancel()

	if err := c.handler.Handle(ctx, e); err != nil {
		logger.Error().Err(err).Str("tour_id", e.TourID).Msg("event handling failed")
		msg.Nack()
		return
	}

	logger.Debug().
		Str("event_id", e.ID).
		Str("tour_id", e.TourID).
		Dur("duration", time.Since(startTime)).
		Msg("event handled")

	msg.Ack()
}

// Package worker consumes tour events and reports on finished tours.
package worker

import (
	"time"
)

// ConsumerSettings tunes Pub/Sub flow control for the event consumer.
type ConsumerSettings struct {
	// MaxOutstandingMessages caps unacknowledged messages in flight.
	// Default: 10
	MaxOutstandingMessages int

	// MaxExtension is how long a message's ack deadline may be extended.
	// Default: 10 minutes
	MaxExtension time.Duration

	// HandleTimeout bounds handling of a single message.
	// Default: 30 seconds
	HandleTimeout time.Duration
}

// DefaultConsumerSettings returns the default consumer settings.
func DefaultConsumerSettings() ConsumerSettings {
	return ConsumerSettings{
		MaxOutstandingMessages: 10,
		MaxExtension:           10 * time.Minute,
		HandleTimeout:          30 * time.Second,
	}
}

func (s ConsumerSettings) withDefaults() ConsumerSettings {
	def := DefaultConsumerSettings()
	if s.MaxOutstandingMessages <= 0 {
		s.MaxOutstandingMessages = def.MaxOutstandingMessages
	}
	if s.MaxExtension <= 0 {
		s.MaxExtension = def.MaxExtension
	}
	if s.HandleTimeout <= 0 {
		s.HandleTimeout = def.HandleTimeout
	}
	return s
}

// Package events provides the in-process event bus that decouples the
// point-award path from badge evaluation. The award pipeline publishes a
// "points changed" event after committing a transaction; badge evaluation
// subscribes instead of being called back synchronously, which keeps the
// two services free of an import cycle.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/givehub/discovery-engine/internal/models"
	"github.com/givehub/discovery-engine/pkg/logger"
)

// TopicPointsChanged carries PointsChanged events.
const TopicPointsChanged = "points.changed"

// PointsChanged is published after a ledger append and aggregate update.
type PointsChanged struct {
	UserID      uint          `json:"user_id"`
	Action      models.Action `json:"action"`
	Points      int           `json:"points"`
	TotalPoints int           `json:"total_points"`
	OccurredAt  time.Time     `json:"occurred_at"`
}

// Handler processes a PointsChanged event.
type Handler func(ctx context.Context, event PointsChanged)

// Bus is a thin wrapper around a Watermill gochannel Pub/Sub.
type Bus struct {
	pubSub *gochannel.GoChannel
	log    *logger.Logger
}

// NewBus creates an in-process bus. Publishing blocks until subscribers ack,
// so the observable effects of an award are complete when Publish returns.
func NewBus(log *logger.Logger) *Bus {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{BlockPublishUntilSubscriberAck: true},
		newWatermillLogger(log),
	)
	return &Bus{pubSub: pubSub, log: log}
}

// PublishPointsChanged publishes an event to all subscribers.
func (b *Bus) PublishPointsChanged(event PointsChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal points changed event: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	if err := b.pubSub.Publish(TopicPointsChanged, msg); err != nil {
		return fmt.Errorf("failed to publish points changed event: %w", err)
	}
	return nil
}

// SubscribePointsChanged registers a handler. The handler runs on its own
// goroutine until ctx is cancelled or the bus is closed.
func (b *Bus) SubscribePointsChanged(ctx context.Context, handler Handler) error {
	messages, err := b.pubSub.Subscribe(ctx, TopicPointsChanged)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TopicPointsChanged, err)
	}

	go func() {
		for msg := range messages {
			var event PointsChanged
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				b.log.Error().Err(err).Str("message_id", msg.UUID).Msg("Failed to decode points changed event")
				msg.Ack()
				continue
			}
			handler(ctx, event)
			msg.Ack()
		}
	}()

	return nil
}

// Close shuts the bus down and terminates subscriber goroutines.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}

// watermillLogger adapts the application logger to Watermill's interface.
type watermillLogger struct {
	log *logger.Logger
}

func newWatermillLogger(log *logger.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return l
}

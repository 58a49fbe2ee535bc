// Package events publishes bridge events for the application layer on a
// Pub/Sub topic.
package events

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub/v2"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

// Topic is the publish side we need. PublisherTopic adapts *pubsub.Publisher.
type Topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) (serverID string, err error)
}

// PublisherTopic blocks on each publish so the bridge learns whether the
// event was accepted.
type PublisherTopic struct {
	Publisher *pubsub.Publisher
}

func (t PublisherTopic) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	return t.Publisher.Publish(ctx, msg).Get(ctx)
}

// PubsubEmitter implements dispatch.Application. Each event is one message:
// the body is {eventId, eventName, eventBody} as text and the event name is
// repeated as an attribute for subscription filters.
type PubsubEmitter struct {
	topic  Topic
	logger *slog.Logger
}

func NewPubsubEmitter(topic Topic, logger *slog.Logger) *PubsubEmitter {
	return &PubsubEmitter{
		topic:  topic,
		logger: logger.With("component", "PubsubEmitter"),
	}
}

func (e *PubsubEmitter) Emit(ctx context.Context, event dispatch.Event) error {
	text, err := value.ToText(event.ToValue())
	if err != nil {
		return fmt.Errorf("failed to serialize event %s: %w", event.ID, err)
	}

	serverID, err := e.topic.Publish(ctx, &pubsub.Message{
		Data: []byte(text),
		Attributes: map[string]string{
			"eventName": event.Name,
			"eventId":   event.ID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}
	e.logger.Debug("Event published", "event", event.Name, "event_id", event.ID, "server_id", serverID)
	return nil
}

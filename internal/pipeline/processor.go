package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-notification-bridge/pkg/notification"
)

// NewProcessor hands every decoded push to the bridge. Delivery problems
// after parsing are logged by the bridge and never retried, so the message is
// acknowledged; an unparseable payload is returned as an error.
func NewProcessor(bridge *Bridge, logger *slog.Logger) messagepipeline.StreamProcessor[InboundPush] {
	return func(ctx context.Context, original messagepipeline.Message, push *InboundPush) error {
		procLogger := logger.With("pubsub_msg_id", original.ID)

		sender, _ := push.Payload.StringAt("from")
		if err := bridge.Receive(ctx, push.Payload, sender); err != nil {
			if errors.Is(err, notification.ErrNilPayload) {
				procLogger.Warn("Dropping push with invalid payload", "err", err)
			} else {
				procLogger.Error("Failed to process push", "err", err)
			}
			return err
		}

		procLogger.Debug("Push processed")
		return nil
	}
}

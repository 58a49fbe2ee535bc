package pipeline

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

// InboundPush is one push payload taken off the transport subscription.
type InboundPush struct {
	MessageID string
	Payload   value.Value
}

// InboundPushTransformer is a dataflow Transformer that decodes a raw message
// body into a Value. Bodies that are not a single JSON document are skipped
// so the StreamingService can route them to the dead letter topic.
func InboundPushTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*InboundPush, bool, error) {
	payload, err := value.FromText(string(msg.Payload))
	if err != nil {
		return nil, true, fmt.Errorf("failed to decode push payload from message %s: %w", msg.ID, err)
	}
	if payload.Kind() != value.Map {
		return nil, true, fmt.Errorf("push payload from message %s is a %s, not a map", msg.ID, payload.Kind())
	}
	return &InboundPush{MessageID: msg.ID, Payload: payload}, false, nil
}

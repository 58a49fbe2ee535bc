package events_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notification-bridge/internal/platform/events"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

type MockTopic struct {
	mock.Mock
}

func (m *MockTopic) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPubsubEmitter(t *testing.T) {
	ctx := context.Background()
	event := dispatch.NewEvent(dispatch.EventRegistered, value.OfMap(map[string]value.Value{
		"deviceToken": value.OfString("tok"),
	}))

	t.Run("Publishes the event record", func(t *testing.T) {
		topic := new(MockTopic)
		emitter := events.NewPubsubEmitter(topic, newTestLogger())

		var sent *pubsub.Message
		topic.On("Publish", ctx, mock.Anything).Run(func(args mock.Arguments) {
			sent = args.Get(1).(*pubsub.Message)
		}).Return("server-1", nil)

		require.NoError(t, emitter.Emit(ctx, event))

		require.NotNil(t, sent)
		assert.Equal(t, dispatch.EventRegistered, sent.Attributes["eventName"])
		decoded, err := value.FromText(string(sent.Data))
		require.NoError(t, err)
		back, err := dispatch.EventFromValue(decoded)
		require.NoError(t, err)
		assert.Equal(t, event.ID, back.ID)
		assert.True(t, back.Body.Equal(event.Body))
	})

	t.Run("Publish failure is returned", func(t *testing.T) {
		topic := new(MockTopic)
		emitter := events.NewPubsubEmitter(topic, newTestLogger())
		topic.On("Publish", ctx, mock.Anything).Return("", errors.New("topic not found"))

		err := emitter.Emit(ctx, event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "topic not found")
	})
}

package pipeline_test

import (
	"context"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notification-bridge/internal/pipeline"
	"github.com/tinywideclouds/go-notification-bridge/pkg/notification"
	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

func TestProcessor(t *testing.T) {
	ctx := context.Background()
	original := messagepipeline.Message{MessageData: messagepipeline.MessageData{ID: "msg-1"}}

	t.Run("Success - hands the push to the bridge", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.presenter.On("Show", ctx, mock.Anything).Return(nil).Once()
		processor := pipeline.NewProcessor(h.bridge, newTestLogger())

		payload := chatPayload(t, "c1", "hi").With("from", value.OfString("sender-1"))
		err := processor(ctx, original, &pipeline.InboundPush{MessageID: "msg-1", Payload: payload})

		require.NoError(t, err)
		h.presenter.AssertExpectations(t)
		assert.Len(t, h.delivered(t), 1)
	})

	t.Run("Failure - invalid payload is returned", func(t *testing.T) {
		h := newHarness(t, false, nil)
		processor := pipeline.NewProcessor(h.bridge, newTestLogger())

		err := processor(ctx, original, &pipeline.InboundPush{MessageID: "msg-1", Payload: value.OfNull()})

		assert.ErrorIs(t, err, notification.ErrNilPayload)
	})

	t.Run("Success - display failure is not retried", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.presenter.On("Show", ctx, mock.Anything).Return(assert.AnError)
		processor := pipeline.NewProcessor(h.bridge, newTestLogger())

		err := processor(ctx, original, &pipeline.InboundPush{MessageID: "msg-1", Payload: chatPayload(t, "c1", "hi")})

		assert.NoError(t, err)
	})
}

package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notification-bridge/internal/eventlog"
	"github.com/tinywideclouds/go-notification-bridge/internal/pipeline"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-bridge/pkg/notification"
	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type MockPresenter struct {
	mock.Mock
}

func (m *MockPresenter) Show(ctx context.Context, r notification.Rendering) error {
	return m.Called(ctx, r).Error(0)
}
func (m *MockPresenter) Cancel(ctx context.Context, tag string, id int32) error {
	return m.Called(ctx, tag, id).Error(0)
}
func (m *MockPresenter) CancelAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *MockPresenter) SetBadge(ctx context.Context, count int) error {
	return m.Called(ctx, count).Error(0)
}
func (m *MockPresenter) RegisterChannel(ctx context.Context, channel notification.Channel) error {
	return m.Called(ctx, channel).Error(0)
}
func (m *MockPresenter) Open(ctx context.Context, target string, id int32) error {
	return m.Called(ctx, target, id).Error(0)
}

// recordingApp keeps every emitted event in order.
type recordingApp struct {
	mu     sync.Mutex
	events []dispatch.Event
	fail   error
}

func (a *recordingApp) Emit(_ context.Context, event dispatch.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail != nil {
		return a.fail
	}
	a.events = append(a.events, event)
	return nil
}

func (a *recordingApp) names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Name)
	}
	return out
}

type fixedProbe bool

func (p fixedProbe) IsForeground(context.Context) bool { return bool(p) }

// --- Helpers ---

type harness struct {
	bridge    *pipeline.Bridge
	presenter *MockPresenter
	app       *recordingApp
	store     *eventlog.MemoryStore
}

func newHarness(t *testing.T, foreground bool, actions map[string]string) *harness {
	t.Helper()
	h := &harness{
		presenter: new(MockPresenter),
		app:       &recordingApp{},
		store:     eventlog.NewMemoryStore(),
	}
	h.bridge = pipeline.NewBridge(
		notification.AppMetadata{PackageName: "com.example.chat", DisplayName: "Chat"},
		h.store,
		h.presenter,
		h.app,
		fixedProbe(foreground),
		pipeline.NewActionRegistry(actions),
		newTestLogger(),
	)
	return h
}

func (h *harness) delivered(t *testing.T) []value.Value {
	t.Helper()
	out, err := h.bridge.Delivered(context.Background())
	require.NoError(t, err)
	return out
}

func (h *harness) pending(t *testing.T) []eventlog.Entry {
	t.Helper()
	entries, err := eventlog.NewLog(h.store, eventlog.NamespaceEvents, newTestLogger()).ListAll(context.Background())
	require.NoError(t, err)
	return entries
}

func mustValue(t *testing.T, text string) value.Value {
	t.Helper()
	v, err := value.FromText(text)
	require.NoError(t, err)
	return v
}

func chatPayload(t *testing.T, ceid, text string) value.Value {
	return mustValue(t, fmt.Sprintf(
		`{"data":{"cepayload":{"event":"chat.message","category":"chat","data":{"ceid":%q}},"contentText":%q}}`, ceid, text))
}

func seenPayload(t *testing.T, ceid string) value.Value {
	return mustValue(t, fmt.Sprintf(
		`{"data":{"cepayload":{"event":"$.notifications.seen","data":{"ceid":%q}}}}`, ceid))
}

func deliveredCEID(v value.Value) string {
	ceid, _ := v.Path("data", "notification", "cepayload", "data", "ceid")
	s, _ := ceid.AsString()
	return s
}

// --- Tests ---

func TestBridge_BackgroundDeliveryPersistsAndDisplays(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, nil)
	h.presenter.On("Show", ctx, mock.MatchedBy(func(r notification.Rendering) bool {
		return r.Body == "hi" && r.Title == "Chat"
	})).Return(nil).Once()

	err := h.bridge.Receive(ctx, chatPayload(t, "c1", "hi"), "")
	require.NoError(t, err)

	h.presenter.AssertExpectations(t)
	delivered := h.delivered(t)
	require.Len(t, delivered, 1)
	assert.Equal(t, "c1", deliveredCEID(delivered[0]))

	// Not ready yet: the event waits in the pending log.
	assert.Empty(t, h.app.names())
	assert.Len(t, h.pending(t), 1)
}

func TestBridge_ForegroundSuppression(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, nil)
	require.NoError(t, h.bridge.Ready(ctx))

	err := h.bridge.Receive(ctx, chatPayload(t, "c1", "hi"), "")
	require.NoError(t, err)

	h.presenter.AssertNotCalled(t, "Show", mock.Anything, mock.Anything)
	assert.Empty(t, h.delivered(t))

	require.Len(t, h.app.events, 1)
	event := h.app.events[0]
	assert.Equal(t, dispatch.EventReceivedNotification, event.Name)
	foreground, _ := event.Body.Get("foreground")
	isForeground, _ := foreground.AsBool()
	assert.True(t, isForeground)
	interaction, _ := event.Body.Get("userInteraction")
	isInteraction, _ := interaction.AsBool()
	assert.False(t, isInteraction)
}

func TestBridge_IgnoresPayloadWithoutApplicationData(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, nil)

	require.NoError(t, h.bridge.Receive(ctx, mustValue(t, `{"data":{"contentText":"plain"}}`), ""))

	h.presenter.AssertNotCalled(t, "Show", mock.Anything, mock.Anything)
	assert.Empty(t, h.delivered(t))
	assert.Empty(t, h.pending(t))
}

func TestBridge_NilPayload(t *testing.T) {
	h := newHarness(t, false, nil)
	err := h.bridge.Receive(context.Background(), value.OfNull(), "")
	assert.ErrorIs(t, err, notification.ErrNilPayload)
}

func TestBridge_UnshowableNotificationIsForwardedOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, nil)

	require.NoError(t, h.bridge.Receive(ctx, chatPayload(t, "c1", ""), ""))

	h.presenter.AssertNotCalled(t, "Show", mock.Anything, mock.Anything)
	assert.Empty(t, h.delivered(t))
	assert.Len(t, h.pending(t), 1)
}

func TestBridge_MarkSeen(t *testing.T) {
	ctx := context.Background()

	t.Run("all clears every delivered record", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.presenter.On("Show", ctx, mock.Anything).Return(nil)
		h.presenter.On("CancelAll", ctx).Return(nil).Once()

		require.NoError(t, h.bridge.Receive(ctx, chatPayload(t, "c1", "one"), ""))
		require.NoError(t, h.bridge.Receive(ctx, chatPayload(t, "c2", "two"), ""))
		require.Len(t, h.delivered(t), 2)
		pendingBefore := len(h.pending(t))

		require.NoError(t, h.bridge.Receive(ctx, seenPayload(t, "all"), ""))

		assert.Empty(t, h.delivered(t))
		h.presenter.AssertExpectations(t)
		h.presenter.AssertNumberOfCalls(t, "Show", 2)
		assert.Len(t, h.pending(t), pendingBefore, "seen events are never forwarded")
	})

	t.Run("specific ceid removes exactly one record", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.presenter.On("Show", ctx, mock.Anything).Return(nil)

		first := chatPayload(t, "c1", "one").With("data", mustValue(t,
			`{"cepayload":{"event":"chat.message","data":{"ceid":"c1"}},"contentText":"one","tag":"room","id":41}`))
		require.NoError(t, h.bridge.Receive(ctx, first, ""))
		require.NoError(t, h.bridge.Receive(ctx, chatPayload(t, "c2", "two"), ""))

		h.presenter.On("Cancel", ctx, "room", int32(41)).Return(nil).Once()

		require.NoError(t, h.bridge.Receive(ctx, seenPayload(t, "c1"), ""))

		h.presenter.AssertExpectations(t)
		delivered := h.delivered(t)
		require.Len(t, delivered, 1)
		assert.Equal(t, "c2", deliveredCEID(delivered[0]))
	})

	t.Run("unknown ceid changes nothing", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.presenter.On("Show", ctx, mock.Anything).Return(nil)
		require.NoError(t, h.bridge.Receive(ctx, chatPayload(t, "c1", "one"), ""))

		require.NoError(t, h.bridge.Receive(ctx, seenPayload(t, "nope"), ""))

		h.presenter.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything, mock.Anything)
		assert.Len(t, h.delivered(t), 1)
	})
}

func TestBridge_ReplayRedisplaysWithoutDuplicating(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, nil)
	h.presenter.On("Show", ctx, mock.Anything).Return(nil)

	for _, ceid := range []string{"c1", "c2", "c3"} {
		require.NoError(t, h.bridge.Receive(ctx, chatPayload(t, ceid, "msg "+ceid), ""))
	}
	require.Len(t, h.delivered(t), 3)

	// A fresh bridge over the same store stands in for the restarted device.
	restarted := pipeline.NewBridge(
		notification.AppMetadata{PackageName: "com.example.chat", DisplayName: "Chat"},
		h.store, h.presenter, h.app, fixedProbe(true), nil, newTestLogger(),
	)

	replayed, err := restarted.Replay(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, replayed)
	h.presenter.AssertNumberOfCalls(t, "Show", 6)
	assert.Len(t, h.delivered(t), 3, "replay must not persist records again")
}

func TestBridge_ReadyFlushesPendingInOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, nil)
	h.presenter.On("Show", ctx, mock.Anything).Return(nil)

	require.NoError(t, h.bridge.RegisterToken(ctx, "device-token"))
	require.NoError(t, h.bridge.Receive(ctx, chatPayload(t, "c1", "first"), ""))
	require.NoError(t, h.bridge.Receive(ctx, chatPayload(t, "c2", "second"), ""))
	require.Len(t, h.pending(t), 3)

	require.NoError(t, h.bridge.Ready(ctx))

	assert.True(t, h.bridge.IsReady())
	assert.Equal(t, []string{
		dispatch.EventReceivedNotification,
		dispatch.EventReceivedNotification,
		dispatch.EventRegistered,
	}, h.app.names(), "stored registration is replaced by the current token")
	assert.Empty(t, h.pending(t))

	first, _ := h.app.events[0].Body.Path("notification", "contentText")
	text, _ := first.AsString()
	assert.Equal(t, "first", text)

	token, _ := h.app.events[2].Body.StringAt("deviceToken")
	assert.Equal(t, "device-token", token)
}

func TestBridge_FailedEmitQueuesAndDropsReadiness(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, nil)
	require.NoError(t, h.bridge.Ready(ctx))

	h.app.fail = errors.New("listener gone")
	require.NoError(t, h.bridge.Receive(ctx, chatPayload(t, "c1", "hi"), ""))

	assert.False(t, h.bridge.IsReady())
	assert.Len(t, h.pending(t), 1)

	h.app.fail = nil
	require.NoError(t, h.bridge.Ready(ctx))
	assert.Equal(t, []string{dispatch.EventReceivedNotification}, h.app.names())
}

// flakyStore fails scans of one namespace while down is set.
type flakyStore struct {
	*eventlog.MemoryStore
	namespace string
	down      bool
}

func (s *flakyStore) Scan(ctx context.Context, namespace string) ([]eventlog.Record, error) {
	if s.down && namespace == s.namespace {
		return nil, errors.New("scan down")
	}
	return s.MemoryStore.Scan(ctx, namespace)
}

func TestBridge_ReadyFailureKeepsQueueing(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: eventlog.NewMemoryStore(), namespace: eventlog.NamespaceEvents}
	app := &recordingApp{}
	bridge := pipeline.NewBridge(
		notification.AppMetadata{PackageName: "com.example.chat", DisplayName: "Chat"},
		store, new(MockPresenter), app, fixedProbe(true), nil, newTestLogger(),
	)

	require.NoError(t, bridge.Receive(ctx, chatPayload(t, "c1", "older"), ""))

	store.down = true
	require.Error(t, bridge.Ready(ctx))
	assert.False(t, bridge.IsReady())

	// A later event must not overtake the one still queued.
	require.NoError(t, bridge.Receive(ctx, chatPayload(t, "c2", "newer"), ""))
	assert.Empty(t, app.names())

	store.down = false
	require.NoError(t, bridge.Ready(ctx))
	require.Len(t, app.events, 2)
	first, _ := app.events[0].Body.Path("notification", "contentText")
	text, _ := first.AsString()
	assert.Equal(t, "older", text)
}

func TestBridge_Actions(t *testing.T) {
	ctx := context.Background()

	t.Run("unregistered action is a typed error", func(t *testing.T) {
		h := newHarness(t, false, nil)

		err := h.bridge.HandleAction(ctx, "reply", chatPayload(t, "c1", "hi"))

		require.Error(t, err)
		assert.ErrorIs(t, err, pipeline.ErrUnregisteredAction)
		var typed *pipeline.UnregisteredActionError
		require.ErrorAs(t, err, &typed)
		assert.Equal(t, "reply", typed.Action)
		h.presenter.AssertNotCalled(t, "Open", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("registered action opens its target and forwards the action", func(t *testing.T) {
		h := newHarness(t, true, map[string]string{"reply": pipeline.TargetDefault})
		require.NoError(t, h.bridge.Ready(ctx))
		h.presenter.On("Open", ctx, pipeline.TargetDefault, mock.Anything).Return(nil).Once()

		envelope := notification.Envelope(chatPayload(t, "c1", "hi"), "reply")
		require.NoError(t, h.bridge.HandleAction(ctx, "reply", envelope))

		h.presenter.AssertExpectations(t)
		require.Len(t, h.app.events, 1)
		body := h.app.events[0].Body
		identifier, _ := body.Path("action", "identifier")
		id, _ := identifier.AsString()
		assert.Equal(t, "reply", id)
		category, _ := body.Path("action", "category")
		cat, _ := category.AsString()
		assert.Equal(t, "chat", cat)

		foreground, _ := body.Get("foreground")
		isForeground, _ := foreground.AsBool()
		assert.False(t, isForeground, "user actions are never foreground deliveries")
		h.presenter.AssertNotCalled(t, "Show", mock.Anything, mock.Anything)
	})

	t.Run("none target forwards without opening", func(t *testing.T) {
		h := newHarness(t, false, map[string]string{"mute": "NONE"})

		require.NoError(t, h.bridge.HandleAction(ctx, "mute", chatPayload(t, "c1", "hi")))

		h.presenter.AssertNotCalled(t, "Open", mock.Anything, mock.Anything, mock.Anything)
		assert.Len(t, h.pending(t), 1)
	})
}

func TestBridge_OpenUsesDefaultAction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, nil)
	require.NoError(t, h.bridge.Ready(ctx))

	require.NoError(t, h.bridge.Open(ctx, notification.Envelope(chatPayload(t, "c1", "hi"), "")))

	require.Len(t, h.app.events, 1)
	body := h.app.events[0].Body
	assert.False(t, body.Has("action"), "the default action is not reported")
	interaction, _ := body.Get("userInteraction")
	isInteraction, _ := interaction.AsBool()
	assert.True(t, isInteraction)

	// The tapped notification stays listed until it is seen, once.
	require.NoError(t, h.bridge.Open(ctx, notification.Envelope(chatPayload(t, "c1", "hi"), "")))
	assert.Len(t, h.delivered(t), 1)
	h.presenter.AssertNotCalled(t, "Show", mock.Anything, mock.Anything)
}

func TestBridge_Dismiss(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, nil)
	h.presenter.On("Show", ctx, mock.Anything).Return(nil)
	require.NoError(t, h.bridge.Receive(ctx, chatPayload(t, "c1", "one"), ""))
	require.NoError(t, h.bridge.Receive(ctx, chatPayload(t, "c2", "two"), ""))

	require.NoError(t, h.bridge.Dismiss(ctx, notification.Envelope(chatPayload(t, "c2", "two"), "")))

	delivered := h.delivered(t)
	require.Len(t, delivered, 1)
	assert.Equal(t, "c1", deliveredCEID(delivered[0]))
}

func TestBridge_BadgeFromPayload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, nil)
	h.presenter.On("SetBadge", ctx, 3).Return(nil).Once()

	payload := mustValue(t, `{"data":{"cepayload":{"event":"chat.message","data":{"ceid":"c1"}},"contentText":"hi","badge":3}}`)
	require.NoError(t, h.bridge.Receive(ctx, payload, ""))

	h.presenter.AssertExpectations(t)
}

func TestBridge_DeliveredListing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, nil)
	h.presenter.On("Show", ctx, mock.Anything).Return(nil)

	payload := mustValue(t, `{"data":{"cepayload":{"event":"chat.message","data":{"ceid":"c1"}},"contentText":"hi","google.sent_time":1700000000000}}`)
	require.NoError(t, h.bridge.Receive(ctx, payload, ""))

	delivered := h.delivered(t)
	require.Len(t, delivered, 1)
	date, _ := delivered[0].Get("date")
	millis, _ := date.AsInt()
	assert.Equal(t, int64(1_700_000_000_000), millis)
	userInteraction, _ := delivered[0].Path("data", "userInteraction")
	b, _ := userInteraction.AsBool()
	assert.False(t, b)
}

func TestBridge_RegisterChannels(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, nil)
	h.presenter.On("RegisterChannel", ctx, mock.MatchedBy(func(c notification.Channel) bool {
		return c.ID == "messages"
	})).Return(nil).Once()

	n, err := h.bridge.RegisterChannels(ctx, mustValue(t, `[{"id":"messages","name":"Messages"},{"name":"missing id"}]`))

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	h.presenter.AssertExpectations(t)

	_, err = h.bridge.RegisterChannels(ctx, mustValue(t, `{"id":"x"}`))
	assert.Error(t, err)
}

func TestBridge_FormatPayload(t *testing.T) {
	h := newHarness(t, false, nil)
	payload := mustValue(t, `{"text":"hello"}`)

	_, handled, err := h.bridge.FormatPayload(payload)
	require.NoError(t, err)
	assert.False(t, handled)

	h.bridge.SetFormatter(dispatch.FormatterFunc(func(p value.Value) (value.Value, error) {
		return value.OfMap(map[string]value.Value{"gcm": p}), nil
	}))
	formatted, handled, err := h.bridge.FormatPayload(payload)
	require.NoError(t, err)
	assert.True(t, handled)
	gcm, _ := formatted.Get("gcm")
	assert.True(t, gcm.Equal(payload))
}

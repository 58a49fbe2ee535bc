// Package pipeline runs every inbound notification through the bridge state
// machine: parse, classify, forward to the application layer and persist or
// display it on the platform.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinywideclouds/go-notification-bridge/internal/eventlog"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-bridge/pkg/notification"
	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

// Bridge owns the pipeline state: the readiness flag, the registered payload
// formatter, the action table and both durable logs. Every inbound event runs
// to completion before the next one starts.
type Bridge struct {
	meta      notification.AppMetadata
	parser    *notification.Parser
	pending   *eventlog.Log
	delivered *eventlog.Log
	settings  *eventlog.Settings
	presenter dispatch.Presenter
	app       dispatch.Application
	probe     dispatch.ForegroundProbe
	actions   *ActionRegistry
	logger    *slog.Logger

	mu    sync.Mutex
	ready atomic.Bool

	formatterMu sync.RWMutex
	formatter   dispatch.Formatter
}

// NewBridge wires a Bridge over store. The bridge starts not ready: every
// event is queued in the pending log until Ready is called.
func NewBridge(
	meta notification.AppMetadata,
	store eventlog.Store,
	presenter dispatch.Presenter,
	app dispatch.Application,
	probe dispatch.ForegroundProbe,
	actions *ActionRegistry,
	logger *slog.Logger,
) *Bridge {
	if actions == nil {
		actions = NewActionRegistry(nil)
	}
	return &Bridge{
		meta:      meta,
		parser:    notification.NewParser(meta, logger),
		pending:   eventlog.NewLog(store, eventlog.NamespaceEvents, logger),
		delivered: eventlog.NewLog(store, eventlog.NamespaceNotifications, logger),
		settings:  eventlog.NewSettings(store),
		presenter: presenter,
		app:       app,
		probe:     probe,
		actions:   actions,
		logger:    logger.With("component", "Bridge"),
	}
}

// delivery is one pass through the state machine.
type delivery struct {
	notification *notification.Notification
	// action is the identifier of the user interaction that caused this
	// delivery, or "" for a transport delivery.
	action      string
	rescheduled bool
}

// Receive handles a payload delivered by the push transport. Only a null or
// non-map payload is reported as an error.
func (b *Bridge) Receive(ctx context.Context, payload value.Value, sender string) error {
	n, err := b.parser.Parse(payload, sender)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.process(ctx, delivery{notification: n})
	return nil
}

// Open handles a tap on a displayed notification. envelope is the tap
// envelope the presenter attached to it.
func (b *Bridge) Open(ctx context.Context, envelope value.Value) error {
	payload, action := unwrapEnvelope(envelope)
	if action == "" {
		action = notification.DefaultActionIdentifier
	}
	n, err := b.parser.Parse(payload, "")
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.process(ctx, delivery{notification: n, action: action})
	return nil
}

// HandleAction handles a press on one of a notification's action buttons.
// The action must be registered; its target is opened unless it is "none".
func (b *Bridge) HandleAction(ctx context.Context, action string, envelope value.Value) error {
	target, err := b.actions.Resolve(action)
	if err != nil {
		return err
	}
	payload, _ := unwrapEnvelope(envelope)
	n, err := b.parser.Parse(payload, "")
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !isTarget(target, TargetNone) {
		if err := b.presenter.Open(ctx, target, n.ID); err != nil {
			b.logger.Error("Failed to open action target", "action", action, "target", target, "err", err)
		}
	}
	b.process(ctx, delivery{notification: n, action: action})
	return nil
}

// Dismiss forgets a notification the user swiped away.
func (b *Bridge) Dismiss(ctx context.Context, envelope value.Value) error {
	payload, _ := unwrapEnvelope(envelope)
	n, err := b.parser.Parse(payload, "")
	if err != nil {
		return err
	}
	if _, ok := n.ChatEnginePayload(); !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ceid := n.CEID()
	removed, ok, err := b.delivered.RemoveFirst(ctx, matchCEID(ceid))
	if err != nil {
		b.logger.Error("Failed to remove dismissed notification", "ceid", ceid, "err", err)
		return nil
	}
	if ok {
		b.logger.Debug("Removed dismissed notification", "ceid", ceid, "key", removed.Key.String())
	}
	return nil
}

// Replay re-runs every persisted delivered notification as a rescheduled
// delivery. It is used after a device restart: notifications are shown again
// without being stored twice and without a foreground check.
func (b *Bridge) Replay(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.delivered.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	replayed := 0
	for _, entry := range entries {
		n, err := b.parser.Parse(entry.Record, "")
		if err != nil {
			b.logger.Warn("Skipping unreadable delivered record", "key", entry.Key.String(), "err", err)
			continue
		}
		b.process(ctx, delivery{notification: n, rescheduled: true})
		replayed++
	}
	b.logger.Info("Replayed delivered notifications", "count", replayed)
	return replayed, nil
}

// Ready marks the application layer as listening and flushes the pending
// events in the order they were queued. Stored registration events are
// dropped in favour of re-sending the current token. The bridge only goes
// live once the pending log is drained; on any error it stays queueing.
func (b *Bridge) Ready(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ready.Store(false)

	entries, err := b.pending.ListAll(ctx)
	if err != nil {
		return err
	}
	b.logger.Info("Application layer ready", "missed_events", len(entries))

	for _, entry := range entries {
		event, err := dispatch.EventFromValue(entry.Record)
		if err != nil {
			b.logger.Warn("Dropping unreadable pending event", "key", entry.Key.String(), "err", err)
		} else if !strings.EqualFold(event.Name, dispatch.EventRegistered) {
			if err := b.app.Emit(ctx, event); err != nil {
				return fmt.Errorf("failed to replay pending event %s: %w", event.ID, err)
			}
		}
		if err := b.pending.Remove(ctx, entry.Key); err != nil {
			return err
		}
	}

	token, ok, err := b.settings.RegistrationToken(ctx)
	if err != nil {
		return err
	}
	b.ready.Store(true)
	if ok {
		b.send(ctx, registeredEvent(token))
	}
	return nil
}

// IsReady reports whether events are currently forwarded live.
func (b *Bridge) IsReady() bool {
	return b.ready.Load()
}

// RegisterToken stores the device registration token and announces it.
func (b *Bridge) RegisterToken(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("registration token must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.settings.Set(ctx, eventlog.SettingRegistrationToken, token); err != nil {
		return err
	}
	b.send(ctx, registeredEvent(token))
	return nil
}

// Delivered lists the persisted delivered notifications in time order.
func (b *Bridge) Delivered(ctx context.Context) ([]value.Value, error) {
	entries, err := b.delivered.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]value.Value, 0, len(entries))
	for _, entry := range entries {
		n, err := b.parser.Parse(entry.Record, "")
		if err != nil {
			b.logger.Warn("Skipping unreadable delivered record", "key", entry.Key.String(), "err", err)
			continue
		}
		out = append(out, value.OfMap(map[string]value.Value{
			"date": value.OfInt(n.SentTime),
			"data": eventBody(n.ToValue(), false, false),
		}))
	}
	return out, nil
}

// SetBadge updates the application icon badge.
func (b *Bridge) SetBadge(ctx context.Context, count int) error {
	return b.presenter.SetBadge(ctx, count)
}

// RegisterChannels registers every valid channel definition in channels.
// Invalid definitions are logged and skipped.
func (b *Bridge) RegisterChannels(ctx context.Context, channels value.Value) (int, error) {
	items, ok := channels.AsList()
	if !ok {
		return 0, fmt.Errorf("channels must be a list, got %s", channels.Kind())
	}
	registered := 0
	for _, item := range items {
		channel, err := notification.ParseChannel(item, b.logger)
		if err != nil {
			b.logger.Warn("Skipping invalid channel", "err", err)
			continue
		}
		if err := b.presenter.RegisterChannel(ctx, channel); err != nil {
			return registered, fmt.Errorf("failed to register channel %s: %w", channel.ID, err)
		}
		registered++
	}
	return registered, nil
}

// RegisterActions replaces the action table.
func (b *Bridge) RegisterActions(targets map[string]string) {
	b.actions.Replace(targets)
}

// SetFormatter registers the payload formatter. A nil formatter removes it.
func (b *Bridge) SetFormatter(f dispatch.Formatter) {
	b.formatterMu.Lock()
	b.formatter = f
	b.formatterMu.Unlock()
}

// FormatPayload runs the registered formatter. handled is false when no
// formatter is registered.
func (b *Bridge) FormatPayload(payload value.Value) (formatted value.Value, handled bool, err error) {
	b.formatterMu.RLock()
	f := b.formatter
	b.formatterMu.RUnlock()

	if f == nil {
		return value.OfNull(), false, nil
	}
	formatted, err = f.Format(payload)
	if err != nil {
		return value.OfNull(), true, fmt.Errorf("payload formatter failed: %w", err)
	}
	return formatted, true, nil
}

// Constants is the name to platform integer map for enumerated fields.
func (b *Bridge) Constants() map[string]value.Value {
	return notification.Constants()
}

// process runs one delivery through the state machine. Callers hold b.mu.
func (b *Bridge) process(ctx context.Context, d delivery) {
	n := d.notification
	log := b.logger.With("notification_id", n.ID, "ceid", n.CEID())

	if _, ok := n.ChatEnginePayload(); !ok {
		log.Debug("Ignoring notification without application payload")
		return
	}

	if n.Badge >= 0 {
		if err := b.presenter.SetBadge(ctx, n.Badge); err != nil {
			log.Warn("Failed to update badge", "badge", n.Badge, "err", err)
		}
	}

	if strings.EqualFold(n.ChatEngineEvent(), notification.SeenEvent) {
		b.markSeen(ctx, n, log)
		return
	}

	foreground := !d.rescheduled && d.action == "" && b.probe.IsForeground(ctx)
	serialized := n.ToValue()

	body := eventBody(serialized, d.action != "", foreground)
	if d.action != "" && !strings.EqualFold(d.action, notification.DefaultActionIdentifier) {
		body = body.With("action", value.OfMap(map[string]value.Value{
			"category":   value.OfString(n.ChatEngineNotificationCategory()),
			"identifier": value.OfString(d.action),
		}))
	}
	b.send(ctx, dispatch.NewEvent(dispatch.EventReceivedNotification, body))

	switch {
	case foreground:
		log.Debug("Application in foreground, notification forwarded only")
	case d.action != "":
		b.remember(ctx, n, serialized, log)
	default:
		b.schedule(ctx, n, serialized, d.rescheduled, log)
	}
}

// schedule persists n (unless it is already persisted) and displays it.
func (b *Bridge) schedule(ctx context.Context, n *notification.Notification, serialized value.Value, rescheduled bool, log *slog.Logger) {
	if !n.CanBeShown() {
		log.Debug("Notification has no body, not displayed")
		return
	}
	if !rescheduled {
		if _, err := b.delivered.Append(ctx, logicalTime(n), serialized); err != nil {
			log.Error("Failed to persist notification, not displayed", "err", err)
			return
		}
	}
	if err := b.presenter.Show(ctx, n.Rendering(b.meta.PackageName)); err != nil {
		log.Error("Failed to display notification", "err", err)
	}
}

// remember persists a notification the user interacted with so it stays
// listed until the application marks it seen. Nothing is displayed.
func (b *Bridge) remember(ctx context.Context, n *notification.Notification, serialized value.Value, log *slog.Logger) {
	ceid := n.CEID()
	if !n.CanBeShown() || ceid == "" {
		return
	}
	entries, err := b.delivered.ListAll(ctx)
	if err != nil {
		log.Error("Failed to list delivered notifications", "err", err)
		return
	}
	match := matchCEID(ceid)
	for _, entry := range entries {
		if match(entry.Record) {
			return
		}
	}
	if _, err := b.delivered.Append(ctx, logicalTime(n), serialized); err != nil {
		log.Error("Failed to persist notification", "err", err)
	}
}

// markSeen removes the delivered record the seen event points at, or every
// record for the "all" wildcard, and cancels what was shown.
func (b *Bridge) markSeen(ctx context.Context, n *notification.Notification, log *slog.Logger) {
	payload, _ := n.ChatEnginePayload()
	target, ok := payload.Path("data", "ceid")
	ceid, isString := target.AsString()
	if !ok || !isString || ceid == "" {
		log.Warn("Seen event without target ceid")
		return
	}

	if strings.EqualFold(ceid, notification.SeenAll) {
		if err := b.delivered.Clear(ctx); err != nil {
			log.Error("Failed to clear delivered notifications", "err", err)
			return
		}
		if err := b.presenter.CancelAll(ctx); err != nil {
			log.Error("Failed to cancel shown notifications", "err", err)
		}
		log.Info("Marked all notifications as seen")
		return
	}

	removed, found, err := b.delivered.RemoveFirst(ctx, matchCEID(ceid))
	if err != nil {
		log.Error("Failed to remove seen notification", "target", ceid, "err", err)
		return
	}
	if !found {
		log.Debug("Seen notification was not delivered here", "target", ceid)
		return
	}
	tag, _ := removed.Record.StringAt("tag")
	id, _ := removed.Record.Get("id")
	numericID, _ := id.AsInt()
	if err := b.presenter.Cancel(ctx, tag, int32(numericID)); err != nil {
		log.Error("Failed to cancel seen notification", "target", ceid, "err", err)
	}
	log.Info("Marked notification as seen", "target", ceid)
}

// send forwards event live when the application layer is ready. Otherwise,
// or when forwarding fails, the event is queued and readiness is dropped
// until the next Ready call.
func (b *Bridge) send(ctx context.Context, event dispatch.Event) {
	if b.ready.Load() {
		err := b.app.Emit(ctx, event)
		if err == nil {
			return
		}
		b.logger.Warn("Application layer did not accept event, queueing", "event", event.Name, "err", err)
		b.ready.Store(false)
	}
	if _, err := b.pending.Append(ctx, time.Time{}, event.ToValue()); err != nil {
		b.logger.Error("Failed to queue event", "event", event.Name, "event_id", event.ID, "err", err)
	}
}

func registeredEvent(token string) dispatch.Event {
	return dispatch.NewEvent(dispatch.EventRegistered, value.OfMap(map[string]value.Value{
		"deviceToken": value.OfString(token),
	}))
}

func eventBody(serialized value.Value, userInteraction, foreground bool) value.Value {
	return value.OfMap(map[string]value.Value{
		"notification":    serialized,
		"userInteraction": value.OfBool(userInteraction),
		"foreground":      value.OfBool(foreground),
	})
}

// unwrapEnvelope accepts either an interaction envelope or a bare payload.
func unwrapEnvelope(envelope value.Value) (payload value.Value, action string) {
	inner, ok := envelope.Get("notification")
	if !ok || inner.Kind() != value.Map {
		return envelope, ""
	}
	action, _ = envelope.StringAt("action")
	return inner, action
}

// matchCEID matches persisted records whose correlation id is ceid.
func matchCEID(ceid string) func(value.Value) bool {
	return func(record value.Value) bool {
		payload, ok := record.Get(notification.ChatEnginePayloadKey)
		if !ok {
			return false
		}
		n := notification.Notification{Extras: map[string]value.Value{notification.ChatEnginePayloadKey: payload}}
		return n.CEID() == ceid
	}
}

func logicalTime(n *notification.Notification) time.Time {
	if n.SentTime > 0 {
		return time.UnixMilli(n.SentTime)
	}
	return time.Time{}
}

// Package dispatch defines the contracts between the bridge pipeline and its
// collaborators: the application layer that receives events, the platform
// layer that displays notifications, and the optional payload formatter.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-notification-bridge/pkg/notification"
	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

// Event names delivered to the application layer.
const (
	EventReceivedNotification = "notificationReceived"
	EventRegistered           = "deviceRegistered"
)

// Event is one outbound application event.
type Event struct {
	ID   uuid.UUID
	Name string
	Body value.Value
}

// NewEvent stamps a fresh event id.
func NewEvent(name string, body value.Value) Event {
	return Event{ID: uuid.New(), Name: name, Body: body}
}

// ToValue is the persisted and published form: {eventId, eventName, eventBody}.
func (e Event) ToValue() value.Value {
	return value.OfMap(map[string]value.Value{
		"eventId":   value.OfString(e.ID.String()),
		"eventName": value.OfString(e.Name),
		"eventBody": e.Body,
	})
}

// EventFromValue reverses ToValue. Records written without an id get a new one.
func EventFromValue(v value.Value) (Event, error) {
	name, ok := v.StringAt("eventName")
	if !ok || name == "" {
		return Event{}, fmt.Errorf("event record has no eventName")
	}
	body, _ := v.Get("eventBody")

	id := uuid.New()
	if raw, ok := v.StringAt("eventId"); ok {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return Event{}, fmt.Errorf("event record has invalid eventId: %w", err)
		}
		id = parsed
	}
	return Event{ID: id, Name: name, Body: body}, nil
}

// Application is the application layer that consumes bridge events.
type Application interface {
	Emit(ctx context.Context, event Event) error
}

// ForegroundProbe reports whether the application is currently in the
// foreground.
type ForegroundProbe interface {
	IsForeground(ctx context.Context) bool
}

// Presenter drives the platform notification center.
type Presenter interface {
	// Show displays a notification. Tag and ID identify it for Cancel.
	Show(ctx context.Context, r notification.Rendering) error
	Cancel(ctx context.Context, tag string, id int32) error
	CancelAll(ctx context.Context) error
	SetBadge(ctx context.Context, count int) error
	RegisterChannel(ctx context.Context, channel notification.Channel) error
	// Open brings the given target (an activity or deep link) to the front.
	Open(ctx context.Context, target string, id int32) error
}

// Formatter reformats an outgoing application payload into transport
// specific push payloads.
type Formatter interface {
	Format(payload value.Value) (value.Value, error)
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(payload value.Value) (value.Value, error)

func (f FormatterFunc) Format(payload value.Value) (value.Value, error) { return f(payload) }

// TokenSource yields the registration token of the device a presenter
// drives. ok is false until the device has registered.
type TokenSource interface {
	RegistrationToken(ctx context.Context) (token string, ok bool, err error)
}

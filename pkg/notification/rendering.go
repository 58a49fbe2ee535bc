package notification

import (
	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

// RenderedAction is one action button on a displayed notification.
type RenderedAction struct {
	Identifier string
	// Target is the fully qualified action the platform fires on press.
	Target   string
	Envelope value.Value
}

// Rendering is the display-only projection of a Notification. Presenters turn
// it into platform calls; nothing else consumes it.
type Rendering struct {
	ID          int32
	Tag         string
	Title       string
	Body        string
	SubText     string
	Ticker      string
	SmallIcon   string
	LargeIcon   string
	Sound       string
	Link        string
	ChannelID   string
	Category    string
	Group       string
	SortKey     string
	Person      string
	ClickAction string
	CollapseKey string
	TTL         int64

	Priority           int
	Visibility         int
	Defaults           int
	Badge              int
	Number             int
	When               int64
	TimeoutAfter       int
	BadgeIconType      int
	GroupAlertBehavior int
	Color              *int32
	Lights             []int64
	Progress           []int64
	Vibrate            []int64

	AutoCancel           bool
	Ongoing              bool
	OnlyAlertOnce        bool
	ShowWhen             bool
	UsesChronometer      bool
	GroupSummary         bool
	LocalOnly            bool
	ChronometerCountDown bool
	Colorized            bool

	// TapEnvelope is handed back to the bridge when the user taps the
	// notification; DeleteEnvelope when it is swiped away.
	TapEnvelope    value.Value
	DeleteEnvelope value.Value
	Actions        []RenderedAction
}

// Envelope wraps a serialized notification the way interaction callbacks
// carry it back into the bridge.
func Envelope(notification value.Value, action string) value.Value {
	env := value.OfMap(map[string]value.Value{
		"notification":    notification,
		"userInteraction": value.OfBool(true),
		"foreground":      value.OfBool(false),
	})
	if action != "" {
		env = env.With("action", value.OfString(action))
	}
	return env
}

// Rendering projects n for display. packageName qualifies action targets.
func (n *Notification) Rendering(packageName string) Rendering {
	serialized := n.ToValue()
	r := Rendering{
		ID:                   n.ID,
		Tag:                  n.Tag,
		Title:                n.Title,
		Body:                 n.Body,
		SubText:              n.SubText,
		Ticker:               n.Ticker,
		SmallIcon:            n.SmallIcon,
		LargeIcon:            n.LargeIcon,
		Sound:                n.Sound,
		Link:                 n.Link,
		ChannelID:            n.ChannelID,
		Category:             n.Category,
		Group:                n.Group,
		SortKey:              n.SortKey,
		Person:               n.Person,
		ClickAction:          n.ClickAction,
		CollapseKey:          n.CollapseKey,
		TTL:                  n.TTL,
		Priority:             n.Priority,
		Visibility:           n.Visibility,
		Defaults:             n.Defaults,
		Badge:                n.Badge,
		Number:               n.Number,
		When:                 n.When,
		TimeoutAfter:         n.TimeoutAfter,
		BadgeIconType:        n.BadgeIconType,
		GroupAlertBehavior:   n.GroupAlertBehavior,
		Color:                n.Color,
		Lights:               n.Lights,
		Progress:             n.Progress,
		Vibrate:              n.Vibrate,
		AutoCancel:           n.AutoCancel,
		Ongoing:              n.Ongoing,
		OnlyAlertOnce:        n.OnlyAlertOnce,
		ShowWhen:             n.ShowWhen,
		UsesChronometer:      n.UsesChronometer,
		GroupSummary:         n.GroupSummary,
		LocalOnly:            n.LocalOnly,
		ChronometerCountDown: n.ChronometerCountDown,
		Colorized:            n.Colorized,
		TapEnvelope:          Envelope(serialized, ""),
		DeleteEnvelope:       Envelope(serialized, ""),
	}
	for _, a := range n.Actions {
		target := a
		if packageName != "" {
			target = packageName + "." + a
		}
		r.Actions = append(r.Actions, RenderedAction{
			Identifier: a,
			Target:     target,
			Envelope:   Envelope(serialized, a),
		})
	}
	return r
}

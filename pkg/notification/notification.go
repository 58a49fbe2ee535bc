// Package notification contains the notification domain model: parsing a raw
// payload Value into a Notification, serializing it back for persistence and
// forwarding, and the display-only rendering projection handed to presenters.
package notification

import (
	"errors"
	"math/rand/v2"
	"sync/atomic"

	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

// ErrNilPayload is returned when Parse is called without a payload.
var ErrNilPayload = errors.New("notification payload must not be null")

const (
	// SeenEvent is the reserved application event that acknowledges one or all
	// delivered notifications.
	SeenEvent = "$.notifications.seen"
	// SeenAll is the ceid wildcard for SeenEvent.
	SeenAll = "all"
	// DefaultActionIdentifier marks a plain tap on a displayed notification.
	DefaultActionIdentifier = "notification.default-action"

	// ChatEnginePayloadKey is the extras key holding the application payload.
	ChatEnginePayloadKey = "cepayload"
)

// Platform flag values. They mirror the integers the mobile notification
// center understands so they can be handed to it unchanged.
const (
	VisibilityPublic  = 1
	VisibilityPrivate = 0
	VisibilitySecret  = -1

	PriorityDefault = 0
	PriorityLow     = -1
	PriorityMin     = -2
	PriorityHigh    = 1
	PriorityMax     = 2

	DefaultAll     = -1
	DefaultSound   = 1
	DefaultVibrate = 2
	DefaultLights  = 4

	BadgeIconNone  = 0
	BadgeIconSmall = 1
	BadgeIconLarge = 2

	GroupAlertAll      = 0
	GroupAlertSummary  = 1
	GroupAlertChildren = 2

	ImportanceNone    = 0
	ImportanceMin     = 1
	ImportanceLow     = 2
	ImportanceDefault = 3
	ImportanceHigh    = 4
)

// Notification categories.
const (
	CategoryAlarm          = "alarm"
	CategoryCall           = "call"
	CategoryEmail          = "email"
	CategoryError          = "err"
	CategoryEvent          = "event"
	CategoryMessage        = "msg"
	CategoryProgress       = "progress"
	CategoryPromo          = "promo"
	CategoryRecommendation = "recommendation"
	CategoryReminder       = "reminder"
	CategoryService        = "service"
	CategorySocial         = "social"
	CategoryStatus         = "status"
	CategorySystem         = "sys"
	CategoryTransport      = "transport"
)

// AppMetadata is the static host application information used to resolve
// defaults before a payload is parsed.
type AppMetadata struct {
	PackageName      string
	DisplayName      string
	DefaultChannelID string
	DefaultSmallIcon string
	DefaultColor     *int32
	LargeIcon        string
}

// Notification is one parsed push or local notification. It is built once by
// Parse and treated as read-only afterwards.
type Notification struct {
	ID                 int32
	TransportMessageID string
	Type               string
	SentTime           int64
	TTL                int64
	CollapseKey        string
	Sender             string
	Receiver           string
	ClickAction        string
	Actions            []string

	Title        string
	Body         string
	SubText      string
	Ticker       string
	SettingsText string
	SmallIcon    string
	LargeIcon    string
	Sound        string
	Link         string
	Tag          string
	Person       string
	Category     string
	ChannelID    string
	SortKey      string
	Group        string

	Badge              int
	Number             int
	When               int64
	TimeoutAfter       int
	Priority           int
	Visibility         int
	Defaults           int
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

	// Extras holds every payload key outside the known field set.
	Extras map[string]value.Value
}

var idSeq atomic.Uint32

func init() {
	idSeq.Store(rand.Uint32())
}

// nextID hands out process-unique notification ids starting from a random
// offset.
func nextID() int32 {
	return int32(idSeq.Add(1))
}

// CanBeShown reports whether there is body text to display.
func (n *Notification) CanBeShown() bool {
	return n.Body != ""
}

// ChatEnginePayload returns the application payload stored under
// extras["cepayload"].
func (n *Notification) ChatEnginePayload() (value.Value, bool) {
	p, ok := n.Extras[ChatEnginePayloadKey]
	if !ok || p.Kind() != value.Map {
		return value.Value{}, false
	}
	return p, true
}

// ChatEngineEvent is the name of the application event that produced the
// notification.
func (n *Notification) ChatEngineEvent() string {
	p, ok := n.ChatEnginePayload()
	if !ok {
		return ""
	}
	event, _ := p.StringAt("event")
	return event
}

// ChatEngineNotificationCategory is the category the application assigned.
func (n *Notification) ChatEngineNotificationCategory() string {
	p, ok := n.ChatEnginePayload()
	if !ok {
		return ""
	}
	category, _ := p.StringAt("category")
	return category
}

// CEID returns the correlation id, looked up at cepayload.ceid first and
// cepayload.data.ceid second.
func (n *Notification) CEID() string {
	p, ok := n.ChatEnginePayload()
	if !ok {
		return ""
	}
	if ceid, ok := p.StringAt("ceid"); ok && ceid != "" {
		return ceid
	}
	if data, ok := p.Get("data"); ok {
		ceid, _ := data.StringAt("ceid")
		return ceid
	}
	return ""
}

package notification

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

// knownKeys is the closed set of payload keys that map onto Notification
// fields. Everything else lands in Extras.
var knownKeys = map[string]struct{}{
	"actions": {}, "person": {}, "autoCancel": {}, "badgeIconType": {}, "category": {}, "channelId": {},
	"chronometerCountDown": {}, "color": {}, "colorized": {}, "contentText": {}, "contentTitle": {},
	"defaults": {}, "group": {}, "groupAlertBehavior": {}, "groupSummary": {}, "largeIcon": {},
	"lights": {}, "localOnly": {}, "number": {}, "ongoing": {}, "onlyAlertOnce": {}, "priority": {},
	"progress": {}, "settingsText": {}, "showWhen": {}, "smallIcon": {}, "sortKey": {}, "sound": {},
	"subText": {}, "ticker": {}, "timeoutAfter": {}, "usesChronometer": {}, "vibrate": {},
	"visibility": {}, "when": {}, "tag": {}, "link": {},
	// transport envelope
	"id": {}, "badge": {}, "click_action": {}, "google.message_id": {}, "google.sent_time": {},
	"type": {}, "from": {}, "to": {}, "collapse_key": {}, "ttl": {},
}

// IsKnownKey reports whether key maps onto a Notification field.
func IsKnownKey(key string) bool {
	_, ok := knownKeys[key]
	return ok
}

// Parser builds Notifications for one host application.
type Parser struct {
	meta   AppMetadata
	logger *slog.Logger
}

func NewParser(meta AppMetadata, logger *slog.Logger) *Parser {
	return &Parser{
		meta:   meta,
		logger: logger.With("component", "NotificationParser"),
	}
}

// Parse builds a Notification from a raw payload. Both the transport shape
// ({notification: {...}, data: {...}}) and the flat shape are accepted.
// Malformed fields are logged and left at their defaults; only a null payload
// is an error.
func (p *Parser) Parse(payload value.Value, sender string) (*Notification, error) {
	if payload.IsNull() {
		return nil, ErrNilPayload
	}
	if payload.Kind() != value.Map {
		return nil, fmt.Errorf("%w: expected a map, got %s", ErrNilPayload, payload.Kind())
	}

	n := p.withDefaults()
	if sender != "" {
		n.Sender = sender
	}

	fields := p.workingSet(payload)
	if display, ok := payload.Get("notification"); ok && display.Kind() == value.Map {
		p.applyDisplay(n, display)
	}
	p.applyFields(n, fields)

	if n.Title == "" {
		n.Title = p.meta.DisplayName
	}
	return n, nil
}

func (p *Parser) withDefaults() *Notification {
	n := &Notification{
		ID:                 nextID(),
		TTL:                -1,
		Badge:              -1,
		Number:             -1,
		When:               -1,
		TimeoutAfter:       -1,
		Priority:           PriorityHigh,
		Visibility:         VisibilityPublic,
		Defaults:           DefaultLights,
		BadgeIconType:      -1,
		GroupAlertBehavior: -1,
		Vibrate:            []int64{1000},
		AutoCancel:         true,
		OnlyAlertOnce:      true,
		LocalOnly:          true,
		ChannelID:          p.meta.DefaultChannelID,
		SmallIcon:          p.meta.DefaultSmallIcon,
		LargeIcon:          p.meta.LargeIcon,
		Extras:             map[string]value.Value{},
	}
	if n.SmallIcon == "" {
		n.SmallIcon = "ic_notification"
	}
	if n.LargeIcon == "" {
		n.LargeIcon = "ic_launcher"
	}
	if p.meta.DefaultColor != nil {
		c := *p.meta.DefaultColor
		n.Color = &c
	}
	return n
}

// workingSet merges the top-level keys (minus the transport sub-maps) with
// the "data" map. Serialized collections inside the result are re-parsed once.
func (p *Parser) workingSet(payload value.Value) value.Value {
	merged := payload.Without("notification", "data")
	if display, ok := payload.Get("notification"); ok && display.Kind() != value.Map {
		merged = merged.With("notification", display)
	}

	if data, ok := payload.Get("data"); ok {
		if s, isString := data.AsString(); isString {
			if parsed, err := value.FromText(s); err == nil {
				data = parsed
			}
		}
		if entries, isMap := data.AsMap(); isMap {
			for k, e := range entries {
				merged = merged.With(k, e)
			}
		} else {
			merged = merged.With("data", data)
		}
	}

	fields, err := value.FromDeserialized(merged)
	if err != nil {
		p.logger.Warn("Failed to deserialize payload fields", "err", err)
		return merged
	}
	return fields
}

// applyDisplay reads the transport-level display block.
func (p *Parser) applyDisplay(n *Notification, display value.Value) {
	if s, ok := display.StringAt("title"); ok {
		n.Title = s
	}
	if s, ok := display.StringAt("body"); ok {
		n.Body = s
	}
	if s, ok := display.StringAt("click_action"); ok && s != "" {
		n.ClickAction = p.qualify(s)
	}
	if v, ok := display.Get("color"); ok {
		if c, ok := p.color("notification.color", v); ok {
			n.Color = &c
		}
	}
	if v, ok := display.Get("badge"); ok {
		n.Badge = p.intOr("notification.badge", v, n.Badge)
	}
	if s, ok := display.StringAt("sound"); ok && s != "" {
		n.Defaults |= DefaultSound
		n.Sound = s
	}
	if s, ok := display.StringAt("tag"); ok {
		n.Tag = s
	}
	if s, ok := display.StringAt("icon"); ok && s != "" {
		n.SmallIcon = s
	}
	if s, ok := display.StringAt("link"); ok {
		n.Link = s
	}
}

func (p *Parser) applyFields(n *Notification, fields value.Value) {
	get := func(key string) (value.Value, bool) {
		v, ok := fields.Get(key)
		if !ok || v.IsNull() {
			return value.Value{}, false
		}
		return v, true
	}

	if v, ok := get("id"); ok {
		n.ID = int32(p.intOr("id", v, int(n.ID)))
	}
	if v, ok := get("google.message_id"); ok {
		n.TransportMessageID = p.stringOr("google.message_id", v, n.TransportMessageID)
	}
	if v, ok := get("type"); ok {
		n.Type = p.stringOr("type", v, n.Type)
	}
	if v, ok := get("google.sent_time"); ok {
		n.SentTime = p.int64Or("google.sent_time", v, n.SentTime)
	}
	if v, ok := get("ttl"); ok {
		n.TTL = p.int64Or("ttl", v, n.TTL)
	}
	if v, ok := get("collapse_key"); ok {
		n.CollapseKey = p.stringOr("collapse_key", v, n.CollapseKey)
	}
	if v, ok := get("from"); ok {
		n.Sender = p.stringOr("from", v, n.Sender)
	}
	if v, ok := get("to"); ok {
		n.Receiver = p.stringOr("to", v, n.Receiver)
	}
	if v, ok := get("click_action"); ok {
		if s := p.stringOr("click_action", v, ""); s != "" {
			n.ClickAction = p.qualify(s)
		}
	}
	if v, ok := get("actions"); ok {
		n.Actions = p.actions(v)
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"contentTitle", &n.Title},
		{"contentText", &n.Body},
		{"subText", &n.SubText},
		{"ticker", &n.Ticker},
		{"settingsText", &n.SettingsText},
		{"smallIcon", &n.SmallIcon},
		{"largeIcon", &n.LargeIcon},
		{"sound", &n.Sound},
		{"link", &n.Link},
		{"tag", &n.Tag},
		{"person", &n.Person},
		{"category", &n.Category},
		{"channelId", &n.ChannelID},
		{"sortKey", &n.SortKey},
		{"group", &n.Group},
	}
	for _, f := range strs {
		if v, ok := get(f.key); ok {
			*f.dst = p.stringOr(f.key, v, *f.dst)
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"badge", &n.Badge},
		{"number", &n.Number},
		{"timeoutAfter", &n.TimeoutAfter},
	}
	for _, f := range ints {
		if v, ok := get(f.key); ok {
			*f.dst = p.intOr(f.key, v, *f.dst)
		}
	}
	if v, ok := get("when"); ok {
		n.When = p.int64Or("when", v, n.When)
	}

	enums := []struct {
		key      string
		dst      *int
		min, max int
	}{
		{"priority", &n.Priority, PriorityMin, PriorityMax},
		{"visibility", &n.Visibility, VisibilitySecret, VisibilityPublic},
		{"badgeIconType", &n.BadgeIconType, BadgeIconNone, BadgeIconLarge},
		{"groupAlertBehavior", &n.GroupAlertBehavior, GroupAlertAll, GroupAlertChildren},
	}
	for _, f := range enums {
		v, ok := get(f.key)
		if !ok {
			continue
		}
		i := p.intOr(f.key, v, *f.dst)
		if i < f.min || i > f.max {
			p.logger.Warn("Enum value out of range, keeping default", "field", f.key, "value", i)
			continue
		}
		*f.dst = i
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"autoCancel", &n.AutoCancel},
		{"ongoing", &n.Ongoing},
		{"onlyAlertOnce", &n.OnlyAlertOnce},
		{"showWhen", &n.ShowWhen},
		{"usesChronometer", &n.UsesChronometer},
		{"groupSummary", &n.GroupSummary},
		{"localOnly", &n.LocalOnly},
		{"chronometerCountDown", &n.ChronometerCountDown},
		{"colorized", &n.Colorized},
	}
	for _, f := range bools {
		if v, ok := get(f.key); ok {
			*f.dst = p.boolOr(f.key, v, *f.dst)
		}
	}

	if v, ok := get("color"); ok {
		if c, ok := p.color("color", v); ok {
			n.Color = &c
		}
	}
	if v, ok := get("defaults"); ok {
		n.Defaults = p.defaults(v, n.Defaults)
	}
	if v, ok := get("lights"); ok {
		if t, ok := p.triple("lights", v); ok {
			n.Lights = t
		}
	}
	if v, ok := get("progress"); ok {
		if t, ok := p.triple("progress", v); ok {
			n.Progress = t
		}
	}
	if v, ok := get("vibrate"); ok {
		if pattern, ok := p.int64List("vibrate", v); ok {
			n.Vibrate = pattern
		}
	}

	for _, key := range fields.Keys() {
		if IsKnownKey(key) {
			continue
		}
		v, _ := fields.Get(key)
		n.Extras[key] = v
	}
}

// qualify prefixes a bare click action with the application package.
func (p *Parser) qualify(action string) string {
	if p.meta.PackageName == "" || strings.HasPrefix(action, p.meta.PackageName+".") {
		return action
	}
	return p.meta.PackageName + "." + action
}

func (p *Parser) stringOr(field string, v value.Value, def string) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	p.logger.Warn("Expected string field", "field", field, "kind", v.Kind().String())
	return def
}

func (p *Parser) int64Or(field string, v value.Value, def int64) int64 {
	switch v.Kind() {
	case value.Number:
		if i, ok := v.AsInt(); ok {
			return i
		}
	case value.String:
		s, _ := v.AsString()
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i
		}
	}
	p.logger.Warn("Expected integer field", "field", field, "value", v.String())
	return def
}

func (p *Parser) intOr(field string, v value.Value, def int) int {
	i := p.int64Or(field, v, int64(def))
	if i > math.MaxInt32 || i < math.MinInt32 {
		p.logger.Warn("Integer field out of range", "field", field, "value", i)
		return def
	}
	return int(i)
}

func (p *Parser) boolOr(field string, v value.Value, def bool) bool {
	if b, ok := v.AsBool(); ok {
		return b
	}
	if s, ok := v.AsString(); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	}
	p.logger.Warn("Expected boolean field", "field", field, "value", v.String())
	return def
}

// color accepts an ARGB integer, a numeric string or a "#RRGGBB" / "#AARRGGBB"
// hex string.
func (p *Parser) color(field string, v value.Value) (int32, bool) {
	if s, ok := v.AsString(); ok && strings.HasPrefix(s, "#") {
		c, err := ParseColor(s)
		if err != nil {
			p.logger.Warn("Malformed color", "field", field, "value", s)
			return 0, false
		}
		return c, true
	}
	i := p.int64Or(field, v, math.MinInt64)
	if i == math.MinInt64 {
		return 0, false
	}
	if i > math.MaxUint32 || i < math.MinInt32 {
		p.logger.Warn("Color out of range", "field", field, "value", i)
		return 0, false
	}
	return int32(uint32(i)), true
}

// defaults ORs a list of default flags onto current.
func (p *Parser) defaults(v value.Value, current int) int {
	if _, isList := v.AsList(); !isList {
		return current | p.intOr("defaults", v, 0)
	}
	flags, ok := p.int64List("defaults", v)
	if !ok {
		return current
	}
	for _, f := range flags {
		current |= int(f)
	}
	return current
}

// triple reads a three element integer list, given as a list or as its JSON
// text. Anything else is discarded.
func (p *Parser) triple(field string, v value.Value) ([]int64, bool) {
	if s, ok := v.AsString(); ok {
		parsed, err := value.FromText(s)
		if err != nil {
			p.logger.Warn("Discarding malformed triple", "field", field, "err", err)
			return nil, false
		}
		v = parsed
	}
	if v.Kind() != value.List || v.Len() != 3 {
		p.logger.Warn("Discarding malformed triple", "field", field, "value", v.String())
		return nil, false
	}
	return p.int64List(field, v)
}

func (p *Parser) int64List(field string, v value.Value) ([]int64, bool) {
	items, ok := v.AsList()
	if !ok {
		p.logger.Warn("Expected list field", "field", field, "kind", v.Kind().String())
		return nil, false
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		i, ok := item.AsInt()
		if !ok {
			p.logger.Warn("Discarding list with non-integer entry", "field", field, "value", v.String())
			return nil, false
		}
		out = append(out, i)
	}
	return out, true
}

func (p *Parser) actions(v value.Value) []string {
	items, ok := v.AsList()
	if !ok {
		p.logger.Warn("Expected list field", "field", "actions", "kind", v.Kind().String())
		return nil
	}
	var out []string
	for _, item := range items {
		s, ok := item.AsString()
		if !ok || s == "" {
			p.logger.Warn("Skipping non-string action", "value", item.String())
			continue
		}
		out = append(out, s)
	}
	return out
}

// ParseColor parses a "#RRGGBB" or "#AARRGGBB" hex string into an ARGB value.
// Six digit colors are fully opaque.
func ParseColor(s string) (int32, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return 0, fmt.Errorf("color %q has no leading #", s)
	}
	if len(hex) == 6 {
		hex = "ff" + hex
	}
	if len(hex) != 8 {
		return 0, fmt.Errorf("color %q must have 6 or 8 hex digits", s)
	}
	u, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("color %q: %w", s, err)
	}
	return int32(uint32(u)), nil
}

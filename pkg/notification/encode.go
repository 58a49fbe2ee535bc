package notification

import (
	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

// ToValue serializes the notification into the flat map shape that Parse
// accepts: known fields under their payload names plus every extra under its
// original key. Empty strings and unset optionals are omitted, except for
// fields whose parse default is not empty.
func (n *Notification) ToValue() value.Value {
	m := make(map[string]value.Value, len(knownKeys)+len(n.Extras))
	for k, v := range n.Extras {
		m[k] = v
	}

	putString := func(key, s string) {
		if s != "" {
			m[key] = value.OfString(s)
		}
	}
	putInts := func(key string, items []int64) {
		if items == nil {
			return
		}
		l := make([]value.Value, len(items))
		for i, x := range items {
			l[i] = value.OfInt(x)
		}
		m[key] = value.OfList(l...)
	}

	m["id"] = value.OfInt(int64(n.ID))
	putString("google.message_id", n.TransportMessageID)
	putString("type", n.Type)
	if n.SentTime > 0 {
		m["google.sent_time"] = value.OfInt(n.SentTime)
	}
	if n.TTL != -1 {
		m["ttl"] = value.OfInt(n.TTL)
	}
	putString("collapse_key", n.CollapseKey)
	putString("from", n.Sender)
	putString("to", n.Receiver)
	putString("click_action", n.ClickAction)
	if len(n.Actions) > 0 {
		m["actions"] = value.OfStrings(n.Actions...)
	}

	putString("contentTitle", n.Title)
	putString("contentText", n.Body)
	putString("subText", n.SubText)
	putString("ticker", n.Ticker)
	putString("settingsText", n.SettingsText)
	m["smallIcon"] = value.OfString(n.SmallIcon)
	m["largeIcon"] = value.OfString(n.LargeIcon)
	putString("sound", n.Sound)
	putString("link", n.Link)
	putString("tag", n.Tag)
	putString("person", n.Person)
	putString("category", n.Category)
	m["channelId"] = value.OfString(n.ChannelID)
	putString("sortKey", n.SortKey)
	putString("group", n.Group)

	m["badge"] = value.OfInt(int64(n.Badge))
	m["number"] = value.OfInt(int64(n.Number))
	m["when"] = value.OfInt(n.When)
	m["timeoutAfter"] = value.OfInt(int64(n.TimeoutAfter))
	m["priority"] = value.OfInt(int64(n.Priority))
	m["visibility"] = value.OfInt(int64(n.Visibility))
	if n.BadgeIconType >= 0 {
		m["badgeIconType"] = value.OfInt(int64(n.BadgeIconType))
	}
	if n.GroupAlertBehavior >= 0 {
		m["groupAlertBehavior"] = value.OfInt(int64(n.GroupAlertBehavior))
	}
	if flags := DefaultFlags(n.Defaults); len(flags) > 0 {
		putInts("defaults", flags)
	}
	if n.Color != nil {
		m["color"] = value.OfInt(int64(*n.Color))
	}
	putInts("lights", n.Lights)
	putInts("progress", n.Progress)
	putInts("vibrate", n.Vibrate)

	m["autoCancel"] = value.OfBool(n.AutoCancel)
	m["ongoing"] = value.OfBool(n.Ongoing)
	m["onlyAlertOnce"] = value.OfBool(n.OnlyAlertOnce)
	m["showWhen"] = value.OfBool(n.ShowWhen)
	m["usesChronometer"] = value.OfBool(n.UsesChronometer)
	m["groupSummary"] = value.OfBool(n.GroupSummary)
	m["localOnly"] = value.OfBool(n.LocalOnly)
	m["chronometerCountDown"] = value.OfBool(n.ChronometerCountDown)
	m["colorized"] = value.OfBool(n.Colorized)

	return value.OfMap(m)
}

// DefaultFlags splits a defaults bitmask into its individual flags.
func DefaultFlags(defaults int) []int64 {
	if defaults == DefaultAll {
		return []int64{DefaultAll}
	}
	var flags []int64
	for _, f := range []int{DefaultSound, DefaultVibrate, DefaultLights} {
		if defaults&f != 0 {
			flags = append(flags, int64(f))
			defaults &^= f
		}
	}
	if defaults != 0 {
		flags = append(flags, int64(defaults))
	}
	return flags
}

package notification

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

// defaultLightColor is opaque green (#00FF00).
const defaultLightColor = int32(-16711936)

// Channel describes a platform notification channel.
type Channel struct {
	ID               string
	Name             string
	Importance       int
	Vibration        bool
	VibrationPattern []int64
	Lights           bool
	LightColor       int32
	Sound            string
}

// ParseChannel reads a channel description. id and name are required.
func ParseChannel(v value.Value, logger *slog.Logger) (Channel, error) {
	c := Channel{
		Importance:       ImportanceHigh,
		Vibration:        true,
		VibrationPattern: []int64{1000},
		Lights:           true,
		LightColor:       defaultLightColor,
	}
	if v.Kind() != value.Map {
		return c, fmt.Errorf("channel must be a map, got %s", v.Kind())
	}

	c.ID, _ = v.StringAt("id")
	c.Name, _ = v.StringAt("name")
	if c.ID == "" || c.Name == "" {
		return c, fmt.Errorf("channel requires id and name")
	}
	c.Sound, _ = v.StringAt("sound")

	if e, ok := v.Get("importance"); ok {
		if i, ok := channelInt(e); ok && i >= ImportanceNone && i <= ImportanceHigh {
			c.Importance = int(i)
		} else {
			logger.Warn("Invalid channel importance, using high", "channel", c.ID, "value", e.String())
		}
	}
	if e, ok := v.Get("vibration"); ok {
		if b, ok := channelBool(e); ok {
			c.Vibration = b
		}
	}
	if e, ok := v.Get("lights"); ok {
		if b, ok := channelBool(e); ok {
			c.Lights = b
		}
	}
	if e, ok := v.Get("lightColor"); ok {
		if i, ok := channelInt(e); ok {
			c.LightColor = int32(uint32(i))
		} else {
			logger.Warn("Invalid channel light color", "channel", c.ID, "value", e.String())
		}
	}
	if e, ok := v.Get("vibrationPattern"); ok {
		items, isList := e.AsList()
		pattern := make([]int64, 0, len(items))
		for _, item := range items {
			if i, ok := item.AsInt(); ok {
				pattern = append(pattern, i)
			}
		}
		if isList && len(pattern) == len(items) {
			c.VibrationPattern = pattern
		} else {
			logger.Warn("Invalid channel vibration pattern", "channel", c.ID, "value", e.String())
		}
	}
	return c, nil
}

func channelInt(v value.Value) (int64, bool) {
	if i, ok := v.AsInt(); ok {
		return i, true
	}
	if s, ok := v.AsString(); ok {
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func channelBool(v value.Value) (bool, bool) {
	if b, ok := v.AsBool(); ok {
		return b, true
	}
	if s, ok := v.AsString(); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		return b, err == nil
	}
	return false, false
}

package dispatch

import (
	"errors"
	"strconv"

	"github.com/tinywideclouds/go-notification-bridge/pkg/notification"
	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

// ErrNoDevice is returned by remote presenters while no device token is
// registered.
var ErrNoDevice = errors.New("no device registered")

// CommandKey is the data key that marks a silent push as a presenter
// command for the device side of the bridge.
const CommandKey = "bridge_command"

// Presenter commands carried by silent pushes.
const (
	CommandCancel          = "cancel"
	CommandCancelAll       = "cancel_all"
	CommandSetBadge        = "set_badge"
	CommandRegisterChannel = "register_channel"
	CommandOpen            = "open"
)

// CommandData builds the string map carried by a command push.
func CommandData(command string, args map[string]string) map[string]string {
	data := make(map[string]string, len(args)+1)
	for k, v := range args {
		data[k] = v
	}
	data[CommandKey] = command
	return data
}

// CancelArgs is the argument set shared by every cancel command.
func CancelArgs(tag string, id int32) map[string]string {
	args := map[string]string{"id": strconv.FormatInt(int64(id), 10)}
	if tag != "" {
		args["tag"] = tag
	}
	return args
}

// ChannelArgs flattens a channel definition for a register_channel command.
func ChannelArgs(c notification.Channel) map[string]string {
	pattern := make([]value.Value, 0, len(c.VibrationPattern))
	for _, ms := range c.VibrationPattern {
		pattern = append(pattern, value.OfInt(ms))
	}
	args := value.Flatten(value.OfMap(map[string]value.Value{
		"id":               value.OfString(c.ID),
		"name":             value.OfString(c.Name),
		"importance":       value.OfInt(int64(c.Importance)),
		"vibration":        value.OfBool(c.Vibration),
		"vibrationPattern": value.OfList(pattern...),
		"lights":           value.OfBool(c.Lights),
		"lightColor":       value.OfInt(int64(c.LightColor)),
	}))
	if c.Sound != "" {
		args["sound"] = c.Sound
	}
	return args
}

// DisplayData is the data block sent with a displayed notification: the tap
// envelope and the action buttons the device hands back to the bridge.
func DisplayData(r notification.Rendering) map[string]string {
	actions := make([]value.Value, 0, len(r.Actions))
	for _, a := range r.Actions {
		actions = append(actions, value.OfMap(map[string]value.Value{
			"identifier": value.OfString(a.Identifier),
			"target":     value.OfString(a.Target),
			"envelope":   a.Envelope,
		}))
	}
	fields := map[string]value.Value{
		"id":       value.OfInt(int64(r.ID)),
		"envelope": r.TapEnvelope,
	}
	if r.Tag != "" {
		fields["tag"] = value.OfString(r.Tag)
	}
	if len(actions) > 0 {
		fields["actions"] = value.OfList(actions...)
	}
	return value.Flatten(value.OfMap(fields))
}

// Package fcm drives an Android notification center through Firebase Cloud
// Messaging. Displays are sent as notification messages; every other
// presenter operation is a data-only command push.
package fcm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-bridge/pkg/notification"
)

// ErrTokenRejected means FCM no longer accepts the registered device token.
var ErrTokenRejected = errors.New("fcm rejected the device token")

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Presenter struct {
	client MessagingClient
	tokens dispatch.TokenSource
	logger *slog.Logger
}

func NewPresenter(client MessagingClient, tokens dispatch.TokenSource, logger *slog.Logger) *Presenter {
	return &Presenter{
		client: client,
		tokens: tokens,
		logger: logger.With("component", "FCMPresenter"),
	}
}

func (p *Presenter) Show(ctx context.Context, r notification.Rendering) error {
	msg := &messaging.MulticastMessage{
		Data: dispatch.DisplayData(r),
		Android: &messaging.AndroidConfig{
			CollapseKey:  r.CollapseKey,
			Priority:     "high",
			TTL:          ttl(r.TTL),
			Notification: androidNotification(r),
		},
	}
	return p.send(ctx, msg, "show")
}

func (p *Presenter) Cancel(ctx context.Context, tag string, id int32) error {
	return p.command(ctx, dispatch.CommandCancel, dispatch.CancelArgs(tag, id))
}

func (p *Presenter) CancelAll(ctx context.Context) error {
	return p.command(ctx, dispatch.CommandCancelAll, nil)
}

func (p *Presenter) SetBadge(ctx context.Context, count int) error {
	return p.command(ctx, dispatch.CommandSetBadge, map[string]string{"count": strconv.Itoa(count)})
}

func (p *Presenter) RegisterChannel(ctx context.Context, channel notification.Channel) error {
	return p.command(ctx, dispatch.CommandRegisterChannel, dispatch.ChannelArgs(channel))
}

func (p *Presenter) Open(ctx context.Context, target string, id int32) error {
	return p.command(ctx, dispatch.CommandOpen, map[string]string{
		"target": target,
		"id":     strconv.FormatInt(int64(id), 10),
	})
}

func (p *Presenter) command(ctx context.Context, command string, args map[string]string) error {
	msg := &messaging.MulticastMessage{
		Data:    dispatch.CommandData(command, args),
		Android: &messaging.AndroidConfig{Priority: "high"},
	}
	return p.send(ctx, msg, command)
}

func (p *Presenter) send(ctx context.Context, msg *messaging.MulticastMessage, op string) error {
	token, ok, err := p.tokens.RegistrationToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device token: %w", err)
	}
	if !ok {
		return dispatch.ErrNoDevice
	}
	msg.Tokens = []string{token}

	br, err := p.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		if messaging.IsInvalidArgument(err) {
			p.logger.Error("FCM rejected message as InvalidArgument (dropping)", "op", op, "err", err)
			return nil
		}
		return fmt.Errorf("fcm transport failed: %w", err)
	}

	if br.FailureCount > 0 {
		for _, resp := range br.Responses {
			if resp.Success {
				continue
			}
			if messaging.IsInvalidArgument(resp.Error) || messaging.IsRegistrationTokenNotRegistered(resp.Error) {
				return fmt.Errorf("%w: %v", ErrTokenRejected, resp.Error)
			}
			return fmt.Errorf("fcm %s failed: %w", op, resp.Error)
		}
	}
	p.logger.Debug("FCM message sent", "op", op)
	return nil
}

func androidNotification(r notification.Rendering) *messaging.AndroidNotification {
	an := &messaging.AndroidNotification{
		Title:                 r.Title,
		Body:                  r.Body,
		Icon:                  r.SmallIcon,
		Sound:                 r.Sound,
		Tag:                   r.Tag,
		ClickAction:           r.ClickAction,
		ChannelID:             r.ChannelID,
		Ticker:                r.Ticker,
		Sticky:                !r.AutoCancel,
		LocalOnly:             r.LocalOnly,
		Priority:              priority(r.Priority),
		Visibility:            visibility(r.Visibility),
		VibrateTimingMillis:   r.Vibrate,
		DefaultSound:          r.Defaults&notification.DefaultSound != 0,
		DefaultVibrateTimings: r.Defaults&notification.DefaultVibrate != 0,
		DefaultLightSettings:  r.Defaults&notification.DefaultLights != 0,
	}
	if r.Color != nil {
		an.Color = rgb(*r.Color)
	}
	if r.Number >= 0 {
		count := r.Number
		an.NotificationCount = &count
	}
	if r.When > 0 {
		at := time.UnixMilli(r.When)
		an.EventTimestamp = &at
	}
	if len(r.Lights) == 3 {
		an.DefaultLightSettings = false
		an.LightSettings = &messaging.LightSettings{
			Color:                  rgb(int32(r.Lights[0])),
			LightOnDurationMillis:  r.Lights[1],
			LightOffDurationMillis: r.Lights[2],
		}
	}
	return an
}

func ttl(millis int64) *time.Duration {
	if millis <= 0 {
		return nil
	}
	d := time.Duration(millis) * time.Millisecond
	return &d
}

// rgb renders an ARGB color int as #RRGGBB.
func rgb(argb int32) string {
	return fmt.Sprintf("#%06X", uint32(argb)&0xFFFFFF)
}

func priority(p int) messaging.AndroidNotificationPriority {
	switch {
	case p <= notification.PriorityMin:
		return messaging.PriorityMin
	case p == notification.PriorityLow:
		return messaging.PriorityLow
	case p == notification.PriorityDefault:
		return messaging.PriorityDefault
	case p == notification.PriorityHigh:
		return messaging.PriorityHigh
	default:
		return messaging.PriorityMax
	}
}

func visibility(v int) messaging.AndroidNotificationVisibility {
	switch v {
	case notification.VisibilityPrivate:
		return messaging.VisibilityPrivate
	case notification.VisibilitySecret:
		return messaging.VisibilitySecret
	default:
		return messaging.VisibilityPublic
	}
}

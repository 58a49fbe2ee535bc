// Package web drives a browser notification center through Web Push (VAPID).
// The registration token of a web device is its JSON push subscription.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/tinywideclouds/go-notification-bridge/notificationbridge/config"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-bridge/pkg/notification"
)

// ErrSubscriptionGone means the push service dropped the subscription.
var ErrSubscriptionGone = errors.New("web push subscription is gone")

// defaultTTL is the push service retention in seconds when the notification
// carries none.
const defaultTTL = 60

type Presenter struct {
	subscriber string
	privateKey string
	publicKey  string
	tokens     dispatch.TokenSource
	logger     *slog.Logger
	httpClient *http.Client
}

func NewPresenter(cfg config.VapidConfig, tokens dispatch.TokenSource, logger *slog.Logger) *Presenter {
	return &Presenter{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		tokens:     tokens,
		logger:     logger.With("component", "WebPushPresenter"),
		httpClient: &http.Client{},
	}
}

func (p *Presenter) Show(ctx context.Context, r notification.Rendering) error {
	actions := make([]map[string]string, 0, len(r.Actions))
	for _, a := range r.Actions {
		actions = append(actions, map[string]string{"action": a.Identifier, "title": a.Identifier})
	}
	body := map[string]any{
		"notification": map[string]any{
			"title":              r.Title,
			"body":               r.Body,
			"icon":               r.LargeIcon,
			"badge":              r.SmallIcon,
			"tag":                r.Tag,
			"silent":             r.Defaults&(notification.DefaultSound|notification.DefaultVibrate) == 0 && r.Sound == "",
			"requireInteraction": !r.AutoCancel,
			"vibrate":            r.Vibrate,
			"actions":            actions,
		},
		"data": dispatch.DisplayData(r),
	}
	ttl := defaultTTL
	if r.TTL > 0 {
		ttl = int((r.TTL + 999) / 1000)
	}
	urgency := webpush.UrgencyNormal
	if r.Priority >= notification.PriorityHigh {
		urgency = webpush.UrgencyHigh
	}
	return p.send(ctx, body, ttl, urgency, "show")
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

// command is a data-only push handled by the service worker.
func (p *Presenter) command(ctx context.Context, command string, args map[string]string) error {
	return p.send(ctx, map[string]any{"data": dispatch.CommandData(command, args)}, defaultTTL, webpush.UrgencyNormal, command)
}

func (p *Presenter) send(ctx context.Context, body map[string]any, ttl int, urgency webpush.Urgency, op string) error {
	raw, ok, err := p.tokens.RegistrationToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device token: %w", err)
	}
	if !ok {
		return dispatch.ErrNoDevice
	}
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return fmt.Errorf("registered token is not a web push subscription: %w", err)
	}

	payloadBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payloadBytes, &sub, &webpush.Options{
		Subscriber:      p.subscriber,
		VAPIDPublicKey:  p.publicKey,
		VAPIDPrivateKey: p.privateKey,
		TTL:             ttl,
		Urgency:         urgency,
		HTTPClient:      p.httpClient,
	})
	if err != nil {
		return fmt.Errorf("web push transport failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		p.logger.Debug("Web push sent", "op", op)
		return nil
	case http.StatusGone, http.StatusNotFound:
		return fmt.Errorf("%w: status %d", ErrSubscriptionGone, resp.StatusCode)
	default:
		p.logger.Warn("WebPush rejected", "op", op, "status", resp.StatusCode, "endpoint", sub.Endpoint)
		return fmt.Errorf("web push %s rejected with status %d", op, resp.StatusCode)
	}
}

// Package apns drives an iOS notification center through the Apple Push
// Notification Service.
package apns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-bridge/pkg/notification"
)

// ErrTokenRejected means APNs no longer accepts the registered device token.
var ErrTokenRejected = errors.New("apns rejected the device token")

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

type Presenter struct {
	client APNSClient
	topic  string // The App Bundle ID (e.g. com.example.chat)
	tokens dispatch.TokenSource
	now    func() time.Time
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
	Sandbox      bool
}

// NewPresenter creates a configured APNs presenter.
// It parses the P8 key immediately to fail fast on startup if credentials are bad.
func NewPresenter(cfg Config, tokens dispatch.TokenSource, logger *slog.Logger) (*Presenter, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tokenSource)
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}
	return NewPresenterWithClient(client, cfg.BundleID, tokens, logger), nil
}

// NewPresenterWithClient wires an already built client.
func NewPresenterWithClient(client APNSClient, topic string, tokens dispatch.TokenSource, logger *slog.Logger) *Presenter {
	return &Presenter{
		client: client,
		topic:  topic,
		tokens: tokens,
		now:    time.Now,
		logger: logger.With("component", "APNSPresenter"),
	}
}

func (p *Presenter) Show(ctx context.Context, r notification.Rendering) error {
	builder := payload.NewPayload().
		AlertTitle(r.Title).
		AlertBody(r.Body)
	if r.SubText != "" {
		builder.AlertSubtitle(r.SubText)
	}
	if r.Sound != "" {
		builder.Sound(r.Sound)
	} else if r.Defaults&notification.DefaultSound != 0 {
		builder.Sound("default")
	}
	if r.Badge > 0 {
		builder.Badge(r.Badge)
	} else if r.Badge == 0 {
		builder.ZeroBadge()
	}
	if r.Category != "" {
		builder.Category(r.Category)
	}
	if r.Tag != "" {
		builder.ThreadID(r.Tag)
	}
	for k, v := range dispatch.DisplayData(r) {
		builder.Custom(k, v)
	}

	n := &apns2.Notification{
		Topic:      p.topic,
		Payload:    builder,
		PushType:   apns2.PushTypeAlert,
		Priority:   apns2.PriorityHigh,
		CollapseID: r.CollapseKey,
	}
	if r.TTL > 0 {
		n.Expiration = p.now().Add(time.Duration(r.TTL) * time.Millisecond)
	}
	return p.push(ctx, n, "show")
}

func (p *Presenter) Cancel(ctx context.Context, tag string, id int32) error {
	return p.command(ctx, payload.NewPayload(), dispatch.CommandCancel, dispatch.CancelArgs(tag, id))
}

func (p *Presenter) CancelAll(ctx context.Context) error {
	return p.command(ctx, payload.NewPayload(), dispatch.CommandCancelAll, nil)
}

// SetBadge uses the native badge field; count <= 0 clears the badge.
func (p *Presenter) SetBadge(ctx context.Context, count int) error {
	builder := payload.NewPayload()
	if count > 0 {
		builder.Badge(count)
	} else {
		builder.ZeroBadge()
	}
	return p.command(ctx, builder, dispatch.CommandSetBadge, map[string]string{"count": strconv.Itoa(count)})
}

// RegisterChannel is forwarded so the device can map the channel onto its
// notification settings; iOS has no channel concept of its own.
func (p *Presenter) RegisterChannel(ctx context.Context, channel notification.Channel) error {
	return p.command(ctx, payload.NewPayload(), dispatch.CommandRegisterChannel, dispatch.ChannelArgs(channel))
}

func (p *Presenter) Open(ctx context.Context, target string, id int32) error {
	return p.command(ctx, payload.NewPayload(), dispatch.CommandOpen, map[string]string{
		"target": target,
		"id":     strconv.FormatInt(int64(id), 10),
	})
}

// command sends a silent background push.
func (p *Presenter) command(ctx context.Context, builder *payload.Payload, command string, args map[string]string) error {
	builder.ContentAvailable()
	for k, v := range dispatch.CommandData(command, args) {
		builder.Custom(k, v)
	}
	return p.push(ctx, &apns2.Notification{
		Topic:    p.topic,
		Payload:  builder,
		PushType: apns2.PushTypeBackground,
		Priority: apns2.PriorityLow,
	}, command)
}

// push sends n to the registered device. APNs HTTP/2 is unary: one request
// per token.
func (p *Presenter) push(ctx context.Context, n *apns2.Notification, op string) error {
	deviceToken, ok, err := p.tokens.RegistrationToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device token: %w", err)
	}
	if !ok {
		return dispatch.ErrNoDevice
	}
	n.DeviceToken = deviceToken

	res, err := p.client.Push(n)
	if err != nil {
		return fmt.Errorf("apns transport failed: %w", err)
	}
	if res.Sent() {
		p.logger.Debug("APNs push sent", "op", op, "apns_id", res.ApnsID)
		return nil
	}

	// See: https://developer.apple.com/documentation/usernotifications/setting_up_a_remote_notification_server/handling_notification_responses_from_apns
	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return fmt.Errorf("%w: %s", ErrTokenRejected, res.Reason)
	default:
		p.logger.Warn("APNs rejected notification", "op", op, "reason", res.Reason, "status", res.StatusCode)
		return fmt.Errorf("apns %s rejected: %s (%d)", op, res.Reason, res.StatusCode)
	}
}

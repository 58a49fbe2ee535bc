// Package logpresenter is a Presenter that only logs. It stands in for a
// platform when none is configured, for local runs and the emulator setup.
package logpresenter

import (
	"context"
	"log/slog"

	"github.com/tinywideclouds/go-notification-bridge/pkg/notification"
)

type Presenter struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Presenter {
	return &Presenter{logger: logger.With("component", "LogPresenter")}
}

func (p *Presenter) Show(_ context.Context, r notification.Rendering) error {
	p.logger.Info("Show notification", "id", r.ID, "tag", r.Tag, "title", r.Title, "channel", r.ChannelID)
	return nil
}

func (p *Presenter) Cancel(_ context.Context, tag string, id int32) error {
	p.logger.Info("Cancel notification", "id", id, "tag", tag)
	return nil
}

func (p *Presenter) CancelAll(context.Context) error {
	p.logger.Info("Cancel all notifications")
	return nil
}

func (p *Presenter) SetBadge(_ context.Context, count int) error {
	p.logger.Info("Set badge", "count", count)
	return nil
}

func (p *Presenter) RegisterChannel(_ context.Context, channel notification.Channel) error {
	p.logger.Info("Register channel", "id", channel.ID, "importance", channel.Importance)
	return nil
}

func (p *Presenter) Open(_ context.Context, target string, id int32) error {
	p.logger.Info("Open target", "target", target, "id", id)
	return nil
}

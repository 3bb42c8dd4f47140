package notify

import (
	"context"
	"log/slog"

	domain "github.com/oncallops/flare/pkg/types"
)

// NoopDispatcher logs intents instead of delivering them. Default when no
// webhook is configured, and handy in development.
type NoopDispatcher struct {
	log *slog.Logger
}

func NewNoopDispatcher(log *slog.Logger) *NoopDispatcher {
	return &NoopDispatcher{log: log}
}

func (d *NoopDispatcher) Dispatch(_ context.Context, intent domain.DeliveryIntent) error {
	d.log.Info("delivery intent (noop)",
		"alert_id", intent.AlertID,
		"reason", intent.Reason,
		"level", intent.Level,
		"channels", intent.Channels,
	)
	return nil
}

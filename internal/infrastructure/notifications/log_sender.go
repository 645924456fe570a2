package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	"github.com/zatekoja/clinicscheduler/pkg/config"
)

// LogSender writes messages to the log instead of delivering them. The
// notifier falls back to it when WhatsApp is disabled.
type LogSender struct {
	logger zerolog.Logger
}

var _ providers.NotificationSender = (*LogSender)(nil)

// NewLogSender creates a log-only sender
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "log_sender").Logger()}
}

// Channel identifies the delivery channel in the notification log
func (l *LogSender) Channel() entities.NotificationChannel {
	return entities.ChannelLog
}

// Send logs the message and returns a synthetic message id
func (l *LogSender) Send(_ context.Context, to, body string) (string, error) {
	id := uuid.NewString()
	l.logger.Info().Str("to", to).Str("message_id", id).Msg(body)
	return id, nil
}

// NewSender returns the WhatsApp sender when it is enabled and the log
// sender otherwise
func NewSender(cfg config.WhatsAppConfig, logger zerolog.Logger) (providers.NotificationSender, error) {
	if !cfg.Enabled {
		return NewLogSender(logger), nil
	}
	return NewWhatsAppSender(cfg)
}

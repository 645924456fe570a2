package providers

import (
	"context"

	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
)

// NotificationSender delivers a rendered message to one recipient
type NotificationSender interface {
	Channel() entities.NotificationChannel
	Send(ctx context.Context, to, body string) (messageID string, err error)
}

package ports

import (
	"context"

	"github.com/reachend/auth-service/internal/core/domain"
)

// Notifier delivers a message to its recipient.
type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}

// NotificationQueue accepts messages for asynchronous delivery. Enqueue must
// not block the caller on delivery.
type NotificationQueue interface {
	Enqueue(n domain.Notification) error
}

package adapter

import (
	"context"

	"agent-hub/internal/domain/model"
)

// EventPublisher fans project events out to external subscribers.
// Publishing is best-effort; the event log in storage is authoritative.
type EventPublisher interface {
	Publish(ctx context.Context, e *model.Event) error
	Close() error
}

// Notifier sends short operator alerts.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

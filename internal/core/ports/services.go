package ports

import (
	"context"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

// EventPublisher publishes overlay events to a message broker.
type EventPublisher interface {
	PublishReconciled(ctx context.Context, ev domain.ReconcileEvent) error
}

// EventSubscriber subscribes to overlay events from a message broker.
// The returned func cancels the subscription.
type EventSubscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(subject string, data []byte)) (func(), error)
}

// OverlayFetcher produces the dataset of one category for a viewport.
// Failures degrade to an empty or partial dataset; they are never returned.
type OverlayFetcher interface {
	Category() domain.Category
	Fetch(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset
}

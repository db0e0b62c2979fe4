package ports

import (
	"github.com/samirrijal/overlaymap/internal/core/domain"
)

// Surface is the rendering surface the overlay engine mutates. It owns a
// scene graph of sources and layers; every call happens on the session loop.
type Surface interface {
	AddSource(id string, src domain.SourceDescriptor) error
	RemoveSource(id string) error
	AddLayer(id, sourceID string, style domain.LayerStyle) error
	RemoveLayer(id string) error
	// On registers a handler for an event, optionally scoped to one layer.
	// The returned func detaches the handler.
	On(ev domain.EventType, layerID string, h domain.EventHandler) (off func())
	ShowPopup(p domain.Popup) error
	Bounds() domain.Bounds
	Zoom() float64
}

// EventSurface is a Surface whose events are delivered through a channel so
// that a single loop can consume them. Dispatch runs the registered handlers.
type EventSurface interface {
	Surface
	Events() <-chan domain.SurfaceEvent
	Dispatch(ev domain.SurfaceEvent)
}

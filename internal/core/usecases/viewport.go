package usecases

import (
	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/ports"
)

// ViewportTracker follows the surface's load and move events and exposes the
// current viewport with its zoom floored.
type ViewportTracker struct {
	surface ports.Surface
	current domain.Viewport
	ready   bool
	subs    []func(prev, next domain.Viewport)
	offs    []func()
}

// NewViewportTracker creates a tracker and registers its surface handlers.
// Handlers registered on the surface afterwards observe the updated viewport.
func NewViewportTracker(surface ports.Surface) *ViewportTracker {
	t := &ViewportTracker{surface: surface}
	t.offs = append(t.offs,
		surface.On(domain.EventLoad, "", func(domain.SurfaceEvent) {
			t.ready = true
			t.update()
		}),
		surface.On(domain.EventMove, "", func(domain.SurfaceEvent) {
			t.update()
		}),
	)
	return t
}

// Current returns the last observed viewport. Before the surface has loaded it
// reads the surface directly.
func (t *ViewportTracker) Current() domain.Viewport {
	if !t.ready {
		return domain.ViewportFromBounds(t.surface.Bounds(), t.surface.Zoom())
	}
	return t.current
}

// Ready reports whether the surface has reported its initial load.
func (t *ViewportTracker) Ready() bool { return t.ready }

// Subscribe registers fn to be called whenever the viewport changes.
func (t *ViewportTracker) Subscribe(fn func(prev, next domain.Viewport)) {
	t.subs = append(t.subs, fn)
}

// Close detaches the tracker from the surface.
func (t *ViewportTracker) Close() {
	for _, off := range t.offs {
		off()
	}
	t.offs = nil
}

func (t *ViewportTracker) update() {
	next := domain.ViewportFromBounds(t.surface.Bounds(), t.surface.Zoom())
	prev := t.current
	if next == prev {
		return
	}
	t.current = next
	for _, fn := range t.subs {
		fn(prev, next)
	}
}

// Package surface provides rendering surface implementations: an in-memory
// surface and a remote surface driven over a message channel.
package surface

import (
	"sync"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

type handlerEntry struct {
	id    uint64
	ev    domain.EventType
	layer string
	fn    domain.EventHandler
}

// Handlers is an event handler registry. Handlers run in registration order.
// A handler registered without a layer receives every event of its type.
type Handlers struct {
	mu      sync.Mutex
	next    uint64
	entries []handlerEntry
}

// On registers fn and returns the func that detaches it.
func (r *Handlers) On(ev domain.EventType, layerID string, fn domain.EventHandler) (off func()) {
	r.mu.Lock()
	r.next++
	id := r.next
	r.entries = append(r.entries, handlerEntry{id: id, ev: ev, layer: layerID, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, e := range r.entries {
				if e.id == id {
					r.entries = append(r.entries[:i], r.entries[i+1:]...)
					return
				}
			}
		})
	}
}

// Dispatch runs the handlers matching ev. Handlers may register or detach
// handlers while running.
func (r *Handlers) Dispatch(ev domain.SurfaceEvent) {
	r.mu.Lock()
	var matched []domain.EventHandler
	for _, e := range r.entries {
		if e.ev != ev.Type {
			continue
		}
		if e.layer != "" && e.layer != ev.LayerID {
			continue
		}
		matched = append(matched, e.fn)
	}
	r.mu.Unlock()

	for _, fn := range matched {
		fn(ev)
	}
}

// Count returns the number of handlers registered for a layer.
func (r *Handlers) Count(layerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.layer == layerID {
			n++
		}
	}
	return n
}

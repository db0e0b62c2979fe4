package surface

import (
	"context"
	"sync"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

// Commands sent to a remote surface.
const (
	OpInit         = "init"
	OpAddSource    = "addSource"
	OpRemoveSource = "removeSource"
	OpAddLayer     = "addLayer"
	OpRemoveLayer  = "removeLayer"
	OpPopup        = "popup"
	OpStatus       = "status"
)

// Command is one instruction for a remote surface.
type Command struct {
	Op         string                   `json:"op"`
	ID         string                   `json:"id,omitempty"`
	SourceID   string                   `json:"source,omitempty"`
	Descriptor *domain.SourceDescriptor `json:"descriptor,omitempty"`
	Style      *domain.LayerStyle       `json:"style,omitempty"`
	Popup      *domain.Popup            `json:"popup,omitempty"`
	Session    string                   `json:"session,omitempty"`
	Center     *domain.GeoPoint         `json:"center,omitempty"`
	Zoom       float64                  `json:"zoom,omitempty"`
	Sport      domain.Sport             `json:"sport,omitempty"`
	State      string                   `json:"state,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// Remote is a rendering surface living on the other end of a connection.
// Mutations are sent as commands; events arrive through Push.
type Remote struct {
	*Handlers

	send   func(v any) error
	events chan domain.SurfaceEvent

	mu     sync.RWMutex
	bounds domain.Bounds
	zoom   float64
	closed bool
}

// NewRemote creates a remote surface writing commands with send. send must be
// safe for concurrent use.
func NewRemote(send func(v any) error, buffer int) *Remote {
	return &Remote{
		Handlers: &Handlers{},
		send:     send,
		events:   make(chan domain.SurfaceEvent, buffer),
	}
}

// Push delivers an event received from the remote end. Load and move events
// update the known viewport before they are queued.
func (r *Remote) Push(ctx context.Context, ev domain.SurfaceEvent) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return context.Canceled
	}
	if ev.Type == domain.EventLoad || ev.Type == domain.EventMove {
		r.bounds, r.zoom = ev.Bounds, ev.Zoom
	}
	r.mu.Unlock()

	select {
	case r.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the event stream. It must not race with Push.
func (r *Remote) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
}

func (r *Remote) Events() <-chan domain.SurfaceEvent { return r.events }

func (r *Remote) Bounds() domain.Bounds {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bounds
}

func (r *Remote) Zoom() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.zoom
}

func (r *Remote) AddSource(id string, src domain.SourceDescriptor) error {
	return r.send(Command{Op: OpAddSource, ID: id, Descriptor: &src})
}

func (r *Remote) RemoveSource(id string) error {
	return r.send(Command{Op: OpRemoveSource, ID: id})
}

func (r *Remote) AddLayer(id, sourceID string, style domain.LayerStyle) error {
	return r.send(Command{Op: OpAddLayer, ID: id, SourceID: sourceID, Style: &style})
}

func (r *Remote) RemoveLayer(id string) error {
	return r.send(Command{Op: OpRemoveLayer, ID: id})
}

func (r *Remote) ShowPopup(p domain.Popup) error {
	return r.send(Command{Op: OpPopup, Popup: &p})
}

// Init sends the initial map state.
func (r *Remote) Init(session string, center domain.GeoPoint, zoom float64, sport domain.Sport) error {
	return r.send(Command{Op: OpInit, Session: session, Center: &center, Zoom: zoom, Sport: sport})
}

// Status reports a session state change or a rejected trigger.
func (r *Remote) Status(state string, err error) error {
	cmd := Command{Op: OpStatus, State: state}
	if err != nil {
		cmd.Error = err.Error()
	}
	return r.send(cmd)
}

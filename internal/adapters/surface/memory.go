package surface

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

// Op is one recorded surface mutation.
type Op struct {
	Kind string
	ID   string
}

// MemoryLayer is a layer held by a Memory surface.
type MemoryLayer struct {
	ID       string
	SourceID string
	Style    domain.LayerStyle
}

// Memory is an in-memory rendering surface. It enforces the scene graph rules
// of a real map widget: ids are unique, a layer needs its source, and a
// source cannot be removed while a layer references it.
type Memory struct {
	*Handlers

	mu      sync.Mutex
	events  chan domain.SurfaceEvent
	bounds  domain.Bounds
	zoom    float64
	sources map[string]domain.SourceDescriptor
	layers  map[string]MemoryLayer
	order   []string
	ops     []Op
	popups  []domain.Popup
	fail    map[Op]error
}

// NewMemory creates a surface showing bounds at zoom.
func NewMemory(bounds domain.Bounds, zoom float64) *Memory {
	return &Memory{
		Handlers: &Handlers{},
		events:   make(chan domain.SurfaceEvent, 64),
		bounds:   bounds,
		zoom:     zoom,
		sources:  make(map[string]domain.SourceDescriptor),
		layers:   make(map[string]MemoryLayer),
		fail:     make(map[Op]error),
	}
}

// Events returns the channel of emitted events.
func (m *Memory) Events() <-chan domain.SurfaceEvent { return m.events }

// Emit queues an event. Load and move events carrying bounds also move the
// surface's viewport.
func (m *Memory) Emit(ev domain.SurfaceEvent) {
	if (ev.Type == domain.EventLoad || ev.Type == domain.EventMove) && ev.Bounds != (domain.Bounds{}) {
		m.mu.Lock()
		m.bounds, m.zoom = ev.Bounds, ev.Zoom
		m.mu.Unlock()
	}
	m.events <- ev
}

// Close closes the event channel.
func (m *Memory) Close() { close(m.events) }

// FailOn makes the given operation return err.
func (m *Memory) FailOn(kind, id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[Op{Kind: kind, ID: id}] = err
}

func (m *Memory) Bounds() domain.Bounds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bounds
}

func (m *Memory) Zoom() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoom
}

func (m *Memory) AddSource(id string, src domain.SourceDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpAddSource, id); err != nil {
		return err
	}
	if _, ok := m.sources[id]; ok {
		return fmt.Errorf("source %q already exists", id)
	}
	m.sources[id] = src
	return nil
}

func (m *Memory) RemoveSource(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpRemoveSource, id); err != nil {
		return err
	}
	if _, ok := m.sources[id]; !ok {
		return fmt.Errorf("source %q does not exist", id)
	}
	for _, l := range m.layers {
		if l.SourceID == id {
			return fmt.Errorf("source %q is used by layer %q", id, l.ID)
		}
	}
	delete(m.sources, id)
	return nil
}

func (m *Memory) AddLayer(id, sourceID string, style domain.LayerStyle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpAddLayer, id); err != nil {
		return err
	}
	if _, ok := m.layers[id]; ok {
		return fmt.Errorf("layer %q already exists", id)
	}
	if _, ok := m.sources[sourceID]; !ok {
		return fmt.Errorf("layer %q references missing source %q", id, sourceID)
	}
	m.layers[id] = MemoryLayer{ID: id, SourceID: sourceID, Style: style}
	m.order = append(m.order, id)
	return nil
}

func (m *Memory) RemoveLayer(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpRemoveLayer, id); err != nil {
		return err
	}
	if _, ok := m.layers[id]; !ok {
		return fmt.Errorf("layer %q does not exist", id)
	}
	delete(m.layers, id)
	for i, l := range m.order {
		if l == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) ShowPopup(p domain.Popup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.popups = append(m.popups, p)
	return nil
}

// Layers returns the layer ids in draw order, bottom first.
func (m *Memory) Layers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Layer returns a layer by id.
func (m *Memory) Layer(id string) (MemoryLayer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[id]
	return l, ok
}

// Sources returns the source ids, sorted.
func (m *Memory) Sources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Source returns a source by id.
func (m *Memory) Source(id string) (domain.SourceDescriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	return s, ok
}

// Ops returns every recorded mutation in order.
func (m *Memory) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Op(nil), m.ops...)
}

// Popups returns the popups shown so far.
func (m *Memory) Popups() []domain.Popup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Popup(nil), m.popups...)
}

func (m *Memory) record(kind, id string) error {
	op := Op{Kind: kind, ID: id}
	if err, ok := m.fail[op]; ok {
		return err
	}
	m.ops = append(m.ops, op)
	return nil
}

package usecases

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/ports"
	"github.com/samirrijal/overlaymap/internal/pkg/metrics"
)

// Reconcile computes the operations that turn the active layers of a category
// into the layers of ds. Ordered categories are replaced as a whole whenever
// any layer or the draw order changed; others are diffed by id and
// fingerprint. Reconciling the same dataset twice yields an empty plan.
func Reconcile(category domain.Category, ds domain.Dataset, active []domain.RenderLayer) domain.Plan {
	ds.Category = category
	next := BuildLayers(ds)

	var current []domain.RenderLayer
	for _, l := range active {
		if l.Category == category {
			current = append(current, l)
		}
	}

	plan := domain.Plan{Category: category, ToAdd: []domain.RenderLayer{}, ToRemove: []string{}}

	if orderedCategory(category) {
		if sameLayers(current, next) {
			return plan
		}
		for _, l := range current {
			plan.ToRemove = append(plan.ToRemove, l.ID)
		}
		plan.ToAdd = append(plan.ToAdd, next...)
		return plan
	}

	wanted := make(map[string]uint64, len(next))
	for _, l := range next {
		wanted[l.ID] = l.Fingerprint
	}
	kept := make(map[string]bool, len(current))
	for _, l := range current {
		if fp, ok := wanted[l.ID]; ok && fp == l.Fingerprint {
			kept[l.ID] = true
			continue
		}
		plan.ToRemove = append(plan.ToRemove, l.ID)
	}
	for _, l := range next {
		if !kept[l.ID] {
			plan.ToAdd = append(plan.ToAdd, l)
		}
	}
	return plan
}

func sameLayers(a, b []domain.RenderLayer) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Fingerprint != b[i].Fingerprint {
			return false
		}
	}
	return true
}

// activeLayer is a layer present on the surface with the token that removes it.
type activeLayer struct {
	layer  domain.RenderLayer
	remove func() error
}

// OverlayManager is the sole owner of the layers on one surface. It is not
// safe for concurrent use; a session calls it from its event loop only.
type OverlayManager struct {
	surface ports.Surface
	active  map[string]*activeLayer
	order   []string
	sources map[string]int
}

// NewOverlayManager creates a new OverlayManager for surface.
func NewOverlayManager(surface ports.Surface) *OverlayManager {
	return &OverlayManager{
		surface: surface,
		active:  make(map[string]*activeLayer),
		sources: make(map[string]int),
	}
}

// Active returns the active layers of a category in the order they were added.
// An empty category returns the layers of every category.
func (m *OverlayManager) Active(category domain.Category) []domain.RenderLayer {
	out := make([]domain.RenderLayer, 0, len(m.order))
	for _, id := range m.order {
		a := m.active[id]
		if category == "" || a.layer.Category == category {
			out = append(out, a.layer)
		}
	}
	return out
}

// Reconcile brings the surface in line with ds and returns the applied plan.
func (m *OverlayManager) Reconcile(ds domain.Dataset) (domain.Plan, error) {
	plan := Reconcile(ds.Category, ds, m.Active(ds.Category))
	return plan, m.Apply(plan)
}

// Apply removes the plan's layers, then adds its layers in draw order. An id
// that is already active is rejected with ErrDuplicateLayer and never added
// twice. Errors of individual operations are joined; the remaining
// operations still run.
func (m *OverlayManager) Apply(plan domain.Plan) error {
	var errs []error
	for _, id := range plan.ToRemove {
		if err := m.remove(id); err != nil {
			errs = append(errs, err)
		}
	}
	for _, l := range plan.ToAdd {
		if err := m.add(l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clear removes every active layer.
func (m *OverlayManager) Clear() error {
	var errs []error
	for i := len(m.order) - 1; i >= 0; i-- {
		if err := m.remove(m.order[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *OverlayManager) add(l domain.RenderLayer) error {
	if _, exists := m.active[l.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateLayer, l.ID)
	}

	if m.sources[l.SourceID] == 0 {
		if err := m.surface.AddSource(l.SourceID, l.Source); err != nil {
			return fmt.Errorf("add source %s: %w", l.SourceID, err)
		}
	}
	if err := m.surface.AddLayer(l.ID, l.SourceID, l.Style); err != nil {
		if m.sources[l.SourceID] == 0 {
			_ = m.surface.RemoveSource(l.SourceID)
		}
		return fmt.Errorf("add layer %s: %w", l.ID, err)
	}
	m.sources[l.SourceID]++

	var off func()
	if l.Click != nil {
		off = m.surface.On(domain.EventClick, l.ID, m.clickHandler(*l.Click))
	}

	id, sourceID := l.ID, l.SourceID
	m.active[id] = &activeLayer{
		layer: l,
		remove: func() error {
			if off != nil {
				off()
			}
			var errs []error
			if err := m.surface.RemoveLayer(id); err != nil {
				errs = append(errs, fmt.Errorf("remove layer %s: %w", id, err))
			}
			m.sources[sourceID]--
			if m.sources[sourceID] <= 0 {
				delete(m.sources, sourceID)
				if err := m.surface.RemoveSource(sourceID); err != nil {
					errs = append(errs, fmt.Errorf("remove source %s: %w", sourceID, err))
				}
			}
			return errors.Join(errs...)
		},
	}
	m.order = append(m.order, id)

	metrics.LayerOps.WithLabelValues("add").Inc()
	metrics.ActiveLayers.WithLabelValues(string(l.Category)).Inc()
	return nil
}

// remove runs the layer's teardown token: detach the click handler, remove
// the layer, then remove its source once no other layer references it.
func (m *OverlayManager) remove(id string) error {
	a, ok := m.active[id]
	if !ok {
		return nil
	}
	delete(m.active, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	metrics.LayerOps.WithLabelValues("remove").Inc()
	metrics.ActiveLayers.WithLabelValues(string(a.layer.Category)).Dec()
	return a.remove()
}

func (m *OverlayManager) clickHandler(target domain.ClickTarget) domain.EventHandler {
	return func(ev domain.SurfaceEvent) {
		link, label, ok := target.Resolve(ev.Properties)
		if !ok {
			return
		}
		if err := m.surface.ShowPopup(domain.Popup{At: ev.LngLat, Link: link, Label: label}); err != nil {
			slog.Warn("show popup failed", "layer", ev.LayerID, "error", err)
		}
	}
}

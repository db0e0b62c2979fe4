package usecases_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/ports"
)

var munich = domain.Bounds{MinLat: 48.13, MinLon: 11.55, MaxLat: 48.14, MaxLon: 11.60}

func munichViewport(zoom int) domain.Viewport {
	return domain.Viewport{NorthWest: munich.NorthWest(), SouthEast: munich.SouthEast(), Zoom: zoom}
}

// --- Mock SegmentSearcher ---

type mockSearcher struct {
	exploreFn func(ctx context.Context, b domain.Bounds, sport domain.Sport) ([]ports.SegmentRecord, error)
	detailsFn func(ctx context.Context, id string) (ports.SegmentStats, error)
}

func (m *mockSearcher) Explore(ctx context.Context, b domain.Bounds, sport domain.Sport) ([]ports.SegmentRecord, error) {
	if m.exploreFn != nil {
		return m.exploreFn(ctx, b, sport)
	}
	return nil, nil
}

func (m *mockSearcher) Details(ctx context.Context, id string) (ports.SegmentStats, error) {
	if m.detailsFn != nil {
		return m.detailsFn(ctx, id)
	}
	return ports.SegmentStats{}, nil
}

// --- Mock TileFetcher ---

type mockTiles struct {
	fetchFn func(ctx context.Context, t domain.TileCoordinate) ([]byte, error)
}

func (m *mockTiles) FetchTile(ctx context.Context, t domain.TileCoordinate) ([]byte, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, t)
	}
	return nil, nil
}

// --- Stub OverlayFetcher ---

type stubFetcher struct {
	category domain.Category
	fetchFn  func(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset
}

func (s *stubFetcher) Category() domain.Category { return s.category }

func (s *stubFetcher) Fetch(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
	if s.fetchFn != nil {
		return s.fetchFn(ctx, vp, sport)
	}
	return domain.EmptyDataset(s.category, vp)
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.ReconcileEvent
}

func (m *mockPublisher) PublishReconciled(ctx context.Context, ev domain.ReconcileEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockPublisher) Events() []domain.ReconcileEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ReconcileEvent(nil), m.events...)
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func points(ids ...string) domain.Dataset {
	ds := domain.EmptyDataset(domain.CategoryTrailPoint, munichViewport(10))
	for i, id := range ids {
		ds.Items = append(ds.Items, domain.Geometry{
			ID:         id,
			Category:   domain.CategoryTrailPoint,
			Kind:       domain.KindPoint,
			Points:     []domain.GeoPoint{{Lat: 48.135, Lon: 11.56 + float64(i)*0.01}},
			Properties: map[string]any{"trailview_id": "tv-" + id, "significance": 100.0},
		})
	}
	return ds
}

func segments(ids ...string) domain.Dataset {
	ds := domain.EmptyDataset(domain.CategorySegment, munichViewport(10))
	for i, id := range ids {
		ds.Items = append(ds.Items, domain.Geometry{
			ID:       id,
			Category: domain.CategorySegment,
			Kind:     domain.KindLine,
			Name:     "Segment " + id,
			Points: []domain.GeoPoint{
				{Lat: 48.131, Lon: 11.55 + float64(i)*0.01},
				{Lat: 48.139, Lon: 11.56 + float64(i)*0.01},
			},
			Properties: map[string]any{"rank": i, "length_m": 1200.0},
		})
	}
	return ds
}

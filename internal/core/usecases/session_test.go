package usecases_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/samirrijal/overlaymap/internal/adapters/surface"
	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/usecases"
	"github.com/samirrijal/overlaymap/internal/pkg/decode"
	"github.com/samirrijal/overlaymap/internal/pkg/geospatial"
)

type statusUpdate struct {
	state usecases.State
	err   error
}

type sessionHarness struct {
	mem      *surface.Memory
	session  *usecases.Session
	status   chan statusUpdate
	pub      *mockPublisher
	done     chan error
	cancel   context.CancelFunc
	segments *stubFetcher
	trails   *stubFetcher
}

func startSession(t *testing.T) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		mem:      surface.NewMemory(munich, 10),
		status:   make(chan statusUpdate, 64),
		pub:      &mockPublisher{},
		done:     make(chan error, 1),
		segments: &stubFetcher{category: domain.CategorySegment},
		trails:   &stubFetcher{category: domain.CategoryTrailPoint},
	}
	density := usecases.NewDensityFetcher(
		decode.RasterSource{BaseURL: "http://heat.test", Style: "hot"},
		geospatial.ZoomPolicy{Cap: 10},
	)
	h.session = usecases.NewSession(h.mem, usecases.Fetchers{
		Segments:    h.segments,
		TrailPoints: h.trails,
		Density:     density,
	}, usecases.SessionOptions{
		ID:        "test",
		Publisher: h.pub,
		Status: func(state usecases.State, err error) {
			h.status <- statusUpdate{state: state, err: err}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.session.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *sessionHarness) load() {
	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventLoad, Bounds: munich, Zoom: 10})
}

// waitStatus consumes status updates until one matches.
func (h *sessionHarness) waitStatus(t *testing.T, state usecases.State, err error) {
	t.Helper()
	eventually(t, "status "+state.String(), func() bool {
		for {
			select {
			case u := <-h.status:
				if u.state == state && errors.Is(u.err, err) {
					return true
				}
			default:
				return false
			}
		}
	})
}

func hasLayerPrefix(layers []string, prefix string) int {
	n := 0
	for _, l := range layers {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func TestSession_RefreshReconcilesBothCategories(t *testing.T) {
	h := startSession(t)
	h.segments.fetchFn = func(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
		return segments("1", "2")
	}
	h.trails.fetchFn = func(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
		return points("a", "b")
	}

	h.load()
	eventually(t, "density layer", func() bool { return hasLayerPrefix(h.mem.Layers(), "heat-layer:") == 1 })

	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventRefresh})
	h.waitStatus(t, usecases.StateFetching, nil)
	h.waitStatus(t, usecases.StateIdle, nil)

	layers := h.mem.Layers()
	if hasLayerPrefix(layers, "segment:") != 2 {
		t.Errorf("expected 2 segment layers, got %v", layers)
	}
	if hasLayerPrefix(layers, "trailpoint:") != 2 {
		t.Errorf("expected 2 trail point layers, got %v", layers)
	}

	cats := map[domain.Category]bool{}
	for _, ev := range h.pub.Events() {
		if ev.SessionID != "test" {
			t.Errorf("unexpected session id %q", ev.SessionID)
		}
		cats[ev.Category] = true
	}
	for _, c := range domain.Categories {
		if !cats[c] {
			t.Errorf("expected a reconcile event for %s", c)
		}
	}
}

func TestSession_DeferredUntilLoad(t *testing.T) {
	h := startSession(t)
	h.segments.fetchFn = func(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
		return segments("1")
	}

	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventRefresh})
	h.waitStatus(t, usecases.StateIdle, nil)
	if ops := h.mem.Ops(); len(ops) != 0 {
		t.Fatalf("expected no surface mutation before load, got %v", ops)
	}

	h.load()
	eventually(t, "deferred segment layer", func() bool {
		return hasLayerPrefix(h.mem.Layers(), "segment:") == 1
	})
}

func TestSession_RefreshRejectedWhileBusy(t *testing.T) {
	h := startSession(t)
	release := make(chan struct{})
	h.segments.fetchFn = func(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
		<-release
		return segments("1")
	}

	h.load()
	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventRefresh})
	h.waitStatus(t, usecases.StateFetching, nil)

	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventRefresh})
	h.waitStatus(t, usecases.StateFetching, domain.ErrBusy)

	close(release)
	h.waitStatus(t, usecases.StateIdle, nil)
	if n := hasLayerPrefix(h.mem.Layers(), "segment:"); n != 1 {
		t.Errorf("expected exactly one reconciliation, got %d segment layers", n)
	}
}

func TestSession_MoveDuringRefreshKeepsStartingViewport(t *testing.T) {
	h := startSession(t)
	release := make(chan struct{})
	started := make(chan domain.Viewport, 1)
	fetchErr := make(chan error, 1)
	h.segments.fetchFn = func(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
		started <- vp
		<-release
		fetchErr <- ctx.Err()
		ds := segments("1")
		ds.FetchedAt = vp
		return ds
	}

	h.load()
	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventRefresh})
	h.waitStatus(t, usecases.StateFetching, nil)
	start := <-started
	if want := domain.ViewportFromBounds(munich, 10); start != want {
		t.Fatalf("expected the refresh to start at %+v, got %+v", want, start)
	}

	berlin := domain.Bounds{MinLat: 52.3, MinLon: 13.1, MaxLat: 52.6, MaxLon: 13.7}
	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventMove, Bounds: berlin, Zoom: 12})
	eventually(t, "density follows the move", func() bool {
		l := h.mem.Layers()
		return len(l) > 0 && !strings.Contains(strings.Join(l, ","), "/10/544/355@")
	})

	close(release)
	h.waitStatus(t, usecases.StateIdle, nil)
	if err := <-fetchErr; err != nil {
		t.Errorf("expected the outstanding fetch to survive the move, got %v", err)
	}
	if n := hasLayerPrefix(h.mem.Layers(), "segment:"); n != 1 {
		t.Errorf("expected the fetched segment to be reconciled, got %d segment layers", n)
	}

	var found bool
	for _, ev := range h.pub.Events() {
		if ev.Category != domain.CategorySegment {
			continue
		}
		found = true
		if ev.Viewport != start {
			t.Errorf("expected reconcile against the starting viewport %+v, got %+v", start, ev.Viewport)
		}
	}
	if !found {
		t.Error("expected a segment reconcile event")
	}
}

func TestSession_PanickingFetcherDegrades(t *testing.T) {
	h := startSession(t)
	h.segments.fetchFn = func(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
		panic("upstream exploded")
	}
	h.trails.fetchFn = func(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
		return points("a")
	}

	h.load()
	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventRefresh})
	h.waitStatus(t, usecases.StateIdle, nil)

	layers := h.mem.Layers()
	if n := hasLayerPrefix(layers, "segment:"); n != 0 {
		t.Errorf("expected no segment layers, got %d", n)
	}
	if n := hasLayerPrefix(layers, "trailpoint:"); n != 2 {
		t.Errorf("expected the trail point layers to survive, got %v", layers)
	}
}

func TestSession_FailedFetchClearsCategory(t *testing.T) {
	h := startSession(t)
	fail := false
	h.segments.fetchFn = func(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
		if fail {
			ds := domain.EmptyDataset(domain.CategorySegment, vp)
			ds.FailedTiles = 1
			return ds
		}
		return segments("1", "2")
	}

	h.load()
	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventRefresh})
	h.waitStatus(t, usecases.StateIdle, nil)
	if hasLayerPrefix(h.mem.Layers(), "segment:") != 2 {
		t.Fatalf("expected 2 segment layers, got %v", h.mem.Layers())
	}

	fail = true
	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventRefresh})
	h.waitStatus(t, usecases.StateIdle, nil)
	if n := hasLayerPrefix(h.mem.Layers(), "segment:"); n != 0 {
		t.Errorf("expected stale segments removed, got %d", n)
	}
}

func TestSession_DensityFollowsZoomAndSport(t *testing.T) {
	h := startSession(t)
	h.load()
	eventually(t, "density at zoom 10", func() bool {
		l := h.mem.Layers()
		return len(l) == 1 && strings.Contains(l[0], "/ride/hot/10/")
	})

	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventMove, Bounds: munich, Zoom: 9.6})
	eventually(t, "density at zoom 9", func() bool {
		l := h.mem.Layers()
		return len(l) == 1 && strings.Contains(l[0], "/ride/hot/9/")
	})

	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventSport, Sport: domain.SportRunning})
	eventually(t, "running density", func() bool {
		l := h.mem.Layers()
		return len(l) == 1 && strings.Contains(l[0], "/run/hot/9/")
	})
}

func TestSession_ClickOpensPopup(t *testing.T) {
	h := startSession(t)
	h.segments.fetchFn = func(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
		return segments("77")
	}
	h.load()
	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventRefresh})
	h.waitStatus(t, usecases.StateIdle, nil)

	h.mem.Emit(domain.SurfaceEvent{Type: domain.EventClick, LayerID: "segment:77"})
	eventually(t, "popup", func() bool { return len(h.mem.Popups()) == 1 })
	if got := h.mem.Popups()[0].Link; got != "https://www.strava.com/segments/77" {
		t.Errorf("unexpected link %q", got)
	}
}

func TestSession_StopClearsLayers(t *testing.T) {
	h := startSession(t)
	h.load()
	eventually(t, "density layer", func() bool { return len(h.mem.Layers()) == 1 })

	h.cancel()
	if err := <-h.done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	h.done <- nil // consumed by cleanup
	if len(h.mem.Layers()) != 0 || len(h.mem.Sources()) != 0 {
		t.Errorf("expected an empty surface, layers=%v sources=%v", h.mem.Layers(), h.mem.Sources())
	}
}

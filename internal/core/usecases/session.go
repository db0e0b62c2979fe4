package usecases

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/ports"
	"github.com/samirrijal/overlaymap/internal/pkg/metrics"
	"github.com/samirrijal/overlaymap/internal/pkg/telemetry"
)

// State is the refresh state of a session.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateReconciling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateReconciling:
		return "reconciling"
	}
	return "unknown"
}

// Fetchers groups the overlay fetchers a session drives.
type Fetchers struct {
	Segments    ports.OverlayFetcher
	TrailPoints ports.OverlayFetcher
	Density     ports.OverlayFetcher
}

// StatusFunc observes state transitions and rejected triggers. err is
// ErrBusy when a refresh was rejected.
type StatusFunc func(state State, err error)

// SessionOptions configures a Session.
type SessionOptions struct {
	ID        string
	Sport     domain.Sport
	Publisher ports.EventPublisher
	Status    StatusFunc
}

type refreshResult struct {
	datasets []domain.Dataset
}

// Session drives the overlays of one surface. All state is owned by the
// goroutine running Run:
//
//	Idle --refresh--> Fetching --fetches settled--> Reconciling --> Idle
//
// A refresh outside Idle is rejected. Density imagery needs no network and is
// reconciled directly on the loop whenever the floored zoom or the sport
// changes. Reconciliations requested before the surface loaded are kept, one
// per category, and applied on load.
type Session struct {
	id        string
	surface   ports.EventSurface
	fetchers  Fetchers
	publisher ports.EventPublisher
	status    StatusFunc
	logger    *slog.Logger

	tracker *ViewportTracker
	manager *OverlayManager

	loaded       bool
	state        State
	sport        domain.Sport
	pending      map[domain.Category]domain.Dataset
	inbox        chan refreshResult
	densityZoom  int
	densitySport domain.Sport
	offs         []func()
}

// NewSession creates a session bound to surface and registers its handlers.
func NewSession(surface ports.EventSurface, fetchers Fetchers, opts SessionOptions) *Session {
	s := &Session{
		id:          opts.ID,
		surface:     surface,
		fetchers:    fetchers,
		publisher:   opts.Publisher,
		status:      opts.Status,
		logger:      slog.Default().With("session", opts.ID),
		tracker:     NewViewportTracker(surface),
		manager:     NewOverlayManager(surface),
		sport:       opts.Sport.OrDefault(),
		pending:     make(map[domain.Category]domain.Dataset),
		inbox:       make(chan refreshResult, 1),
		densityZoom: -1,
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Run processes surface events and fetch completions until ctx is done or the
// surface's event channel is closed. On exit every layer is removed.
func (s *Session) Run(ctx context.Context) error {
	s.offs = append(s.offs,
		s.surface.On(domain.EventLoad, "", func(domain.SurfaceEvent) { s.onLoad(ctx) }),
		s.surface.On(domain.EventRefresh, "", func(domain.SurfaceEvent) { _ = s.Refresh(ctx) }),
		s.surface.On(domain.EventSport, "", func(ev domain.SurfaceEvent) { s.SetSport(ctx, ev.Sport) }),
	)
	s.tracker.Subscribe(func(prev, next domain.Viewport) {
		if s.loaded {
			s.refreshDensity(ctx)
		}
	})
	defer s.close()

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	events := s.surface.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.surface.Dispatch(ev)
		case res := <-s.inbox:
			s.complete(ctx, res)
		}
	}
}

// Refresh starts fetching segments and trail points for the current viewport.
// It returns ErrBusy while a previous refresh is outstanding.
func (s *Session) Refresh(ctx context.Context) error {
	if s.state != StateIdle {
		metrics.Refreshes.WithLabelValues("rejected").Inc()
		s.logger.Debug("refresh rejected", "state", s.state.String())
		s.notify(domain.ErrBusy)
		return domain.ErrBusy
	}
	metrics.Refreshes.WithLabelValues("started").Inc()
	s.setState(StateFetching)

	vp := s.tracker.Current()
	sport := s.sport
	var fetchers []ports.OverlayFetcher
	for _, f := range []ports.OverlayFetcher{s.fetchers.Segments, s.fetchers.TrailPoints} {
		if f != nil {
			fetchers = append(fetchers, f)
		}
	}

	go func() {
		datasets := make([]domain.Dataset, len(fetchers))
		var g errgroup.Group
		for i, f := range fetchers {
			g.Go(func() error {
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("overlay fetch panicked", "category", f.Category(), "panic", r)
						ds := domain.EmptyDataset(f.Category(), vp)
						ds.FailedTiles = 1
						datasets[i] = ds
					}
				}()
				datasets[i] = f.Fetch(ctx, vp, sport)
				return nil
			})
		}
		_ = g.Wait()

		select {
		case s.inbox <- refreshResult{datasets: datasets}:
		case <-ctx.Done():
		}
	}()
	return nil
}

// SetSport switches the activity type. Density imagery follows immediately;
// segments follow on the next refresh.
func (s *Session) SetSport(ctx context.Context, sport domain.Sport) {
	parsed, err := domain.ParseSport(string(sport))
	if err != nil {
		s.logger.Warn("ignoring sport change", "error", err)
		return
	}
	s.sport = parsed
	s.refreshDensity(ctx)
}

// Submit reconciles an externally produced dataset, deferring it until the
// surface has loaded.
func (s *Session) Submit(ctx context.Context, ds domain.Dataset) {
	s.reconcile(ctx, ds)
}

// State returns the current refresh state.
func (s *Session) State() State { return s.state }

// Sport returns the selected activity type.
func (s *Session) Sport() domain.Sport { return s.sport }

// Viewport returns the tracked viewport.
func (s *Session) Viewport() domain.Viewport { return s.tracker.Current() }

func (s *Session) complete(ctx context.Context, res refreshResult) {
	s.setState(StateReconciling)
	for _, ds := range res.datasets {
		s.reconcile(ctx, ds)
	}
	s.setState(StateIdle)
}

func (s *Session) onLoad(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true
	for _, c := range domain.Categories {
		ds, ok := s.pending[c]
		if !ok {
			continue
		}
		delete(s.pending, c)
		s.reconcile(ctx, ds)
	}
	s.refreshDensity(ctx)
}

// refreshDensity recomputes density imagery when the floored zoom or the
// sport differs from the last computation.
func (s *Session) refreshDensity(ctx context.Context) {
	if s.fetchers.Density == nil {
		return
	}
	vp := s.tracker.Current()
	if vp.Zoom == s.densityZoom && s.sport == s.densitySport {
		return
	}
	s.densityZoom, s.densitySport = vp.Zoom, s.sport
	s.reconcile(ctx, s.fetchers.Density.Fetch(ctx, vp, s.sport))
}

func (s *Session) reconcile(ctx context.Context, ds domain.Dataset) {
	if !s.loaded {
		s.pending[ds.Category] = ds
		s.logger.Debug("reconciliation deferred until surface load", "category", ds.Category)
		return
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanReconcile, trace.WithAttributes(
		attribute.String(telemetry.AttrCategory, string(ds.Category)),
		attribute.Int(telemetry.AttrItemCount, len(ds.Items)),
	))
	defer span.End()

	plan, err := s.manager.Reconcile(ds)
	metrics.Reconciliations.WithLabelValues(string(ds.Category)).Inc()
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("reconciliation incomplete", "category", ds.Category, "error", err)
	}
	if plan.Empty() {
		return
	}
	s.logger.Debug("reconciled",
		"category", ds.Category,
		"added", len(plan.ToAdd),
		"removed", len(plan.ToRemove),
		"failed_tiles", ds.FailedTiles,
	)

	if s.publisher == nil {
		return
	}
	added := make([]string, len(plan.ToAdd))
	for i, l := range plan.ToAdd {
		added[i] = l.ID
	}
	ev := domain.ReconcileEvent{
		SessionID: s.id,
		Category:  ds.Category,
		Added:     added,
		Removed:   plan.ToRemove,
		Active:    len(s.manager.Active(ds.Category)),
		Viewport:  ds.FetchedAt,
	}
	if err := s.publisher.PublishReconciled(ctx, ev); err != nil {
		s.logger.Warn("publish reconcile event failed", "error", err)
	}
}

func (s *Session) setState(st State) {
	s.state = st
	s.notify(nil)
}

func (s *Session) notify(err error) {
	if s.status != nil {
		s.status(s.state, err)
	}
}

func (s *Session) close() {
	for _, off := range s.offs {
		off()
	}
	s.offs = nil
	s.tracker.Close()
	if err := s.manager.Clear(); err != nil {
		s.logger.Warn("clearing layers failed", "error", err)
	}
}

package usecases

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/ports"
	"github.com/samirrijal/overlaymap/internal/pkg/decode"
	"github.com/samirrijal/overlaymap/internal/pkg/geospatial"
	"github.com/samirrijal/overlaymap/internal/pkg/metrics"
	"github.com/samirrijal/overlaymap/internal/pkg/telemetry"
)

// SegmentFetcher searches ranked route segments inside the viewport.
type SegmentFetcher struct {
	search  ports.SegmentSearcher
	details bool
}

// NewSegmentFetcher creates a new SegmentFetcher. With details set, the top
// segment's popularity counters are attached to the dataset.
func NewSegmentFetcher(search ports.SegmentSearcher, details bool) *SegmentFetcher {
	return &SegmentFetcher{search: search, details: details}
}

func (f *SegmentFetcher) Category() domain.Category { return domain.CategorySegment }

// Fetch returns the segments in rank order, most relevant first. A failed
// search yields an empty dataset; a malformed polyline drops only its segment.
func (f *SegmentFetcher) Fetch(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
	sport = sport.OrDefault()
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanFetchSegments, trace.WithAttributes(
		attribute.String(telemetry.AttrSport, string(sport)),
		attribute.Int(telemetry.AttrZoom, vp.Zoom),
	))
	defer span.End()

	ds := domain.EmptyDataset(domain.CategorySegment, vp)
	ds.Sport = sport

	if err := vp.Validate(); err != nil {
		slog.Warn("segment search skipped", "error", err)
		span.SetStatus(codes.Error, err.Error())
		return ds
	}

	cat := string(domain.CategorySegment)
	start := time.Now()
	records, err := f.search.Explore(ctx, vp.Bounds(), sport)
	metrics.TileFetchDuration.WithLabelValues(cat).Observe(time.Since(start).Seconds())
	metrics.TileFetches.WithLabelValues(cat, fetchOutcome(err)).Inc()
	if err != nil {
		slog.Warn("segment search failed", "error", err, "sport", sport)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ds.FailedTiles = 1
		return ds
	}

	for _, r := range records {
		points, err := decode.DecodePolyline(r.Polyline)
		if err != nil {
			metrics.TileFetches.WithLabelValues(cat, fetchOutcome(err)).Inc()
			slog.Warn("dropping segment with malformed polyline", "segment", r.ID, "error", err)
			continue
		}
		ds.Items = append(ds.Items, domain.Geometry{
			ID:       r.ID,
			Category: domain.CategorySegment,
			Kind:     domain.KindLine,
			Points:   points,
			Name:     r.Name,
			Properties: map[string]any{
				"rank":     len(ds.Items),
				"length_m": geospatial.PathLength(points),
			},
		})
	}
	ds.Items = uniqueByID(ds.Items)

	if f.details && len(ds.Items) > 0 {
		top := ds.Items[0].ID
		stats, err := f.search.Details(ctx, top)
		if err != nil {
			slog.Warn("segment details failed", "segment", top, "error", err)
		} else {
			ds.Stats = map[string]int{
				"athlete_count": stats.AthleteCount,
				"star_count":    stats.StarCount,
			}
		}
	}

	span.SetAttributes(attribute.Int(telemetry.AttrItemCount, len(ds.Items)))
	return ds
}

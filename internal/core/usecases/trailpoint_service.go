package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
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

// TrailPointFetcher discovers trail points by fanning out over vector tiles.
type TrailPointFetcher struct {
	tiles  ports.TileFetcher
	layer  string
	policy geospatial.ZoomPolicy
	limit  int
}

// NewTrailPointFetcher creates a new TrailPointFetcher reading features of
// the named vector-tile layer. limit bounds the tiles fetched concurrently.
func NewTrailPointFetcher(tiles ports.TileFetcher, layer string, policy geospatial.ZoomPolicy, limit int) *TrailPointFetcher {
	return &TrailPointFetcher{tiles: tiles, layer: layer, policy: policy, limit: limit}
}

func (f *TrailPointFetcher) Category() domain.Category { return domain.CategoryTrailPoint }

// Fetch returns the flattened features of every tile covering the viewport.
// Tiles that fail are counted in FailedTiles and left out.
func (f *TrailPointFetcher) Fetch(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanFetchTrailPoints, trace.WithAttributes(
		attribute.Int(telemetry.AttrZoom, vp.Zoom),
	))
	defer span.End()

	ds := domain.EmptyDataset(domain.CategoryTrailPoint, vp)
	ds.Sport = sport

	zoom, ok := f.policy.Effective(vp.Zoom)
	if !ok {
		slog.Debug("trail points disabled at zoom", "zoom", vp.Zoom, "min", f.policy.DisableBelow)
		return ds
	}
	tiles, err := geospatial.ResolveTiles(vp.NorthWest, vp.SouthEast, zoom)
	if err != nil {
		slog.Warn("trail point tiles not resolved", "error", err)
		span.SetStatus(codes.Error, err.Error())
		return ds
	}
	span.SetAttributes(attribute.Int(telemetry.AttrTileCount, len(tiles)))

	items, failed, err := fanOut(ctx, tiles, f.limit, f.fetchTile)
	if err != nil {
		slog.Warn("trail point tiles failed", "failed", failed, "total", len(tiles), "error", err)
		span.RecordError(err)
	}

	ds.Items = append(ds.Items, uniqueByID(items)...)
	ds.FailedTiles = failed
	span.SetAttributes(
		attribute.Int(telemetry.AttrItemCount, len(ds.Items)),
		attribute.Int(telemetry.AttrFailedTiles, failed),
	)
	return ds
}

func (f *TrailPointFetcher) fetchTile(ctx context.Context, t domain.TileCoordinate) ([]domain.Geometry, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanFetchTile, trace.WithAttributes(
		attribute.String(telemetry.AttrCategory, string(domain.CategoryTrailPoint)),
		attribute.String(telemetry.AttrTile, t.String()),
	))
	defer span.End()

	cat := string(domain.CategoryTrailPoint)
	start := time.Now()
	data, err := f.tiles.FetchTile(ctx, t)
	metrics.TileFetchDuration.WithLabelValues(cat).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TileFetches.WithLabelValues(cat, fetchOutcome(err)).Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("tile %s: %w", t, err)
	}

	features, err := decode.DecodeVectorTile(data, t, f.layer)
	metrics.TileFetches.WithLabelValues(cat, fetchOutcome(err)).Inc()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("tile %s: %w", t, err)
	}
	return trailPointGeometries(features, t), nil
}

// trailPointGeometries converts decoded features. Multi-point features become
// one point each.
func trailPointGeometries(features []decode.Feature, t domain.TileCoordinate) []domain.Geometry {
	var out []domain.Geometry
	for i, f := range features {
		id := featureID(f, t, i)
		switch f.Kind {
		case domain.KindPoint:
			for j, part := range f.Parts {
				if len(part) == 0 {
					continue
				}
				pid := id
				if j > 0 {
					pid = id + "#" + strconv.Itoa(j)
				}
				out = append(out, domain.Geometry{
					ID:         pid,
					Category:   domain.CategoryTrailPoint,
					Kind:       domain.KindPoint,
					Points:     part[:1],
					Properties: f.Properties,
				})
			}
		case domain.KindLine:
			for j, part := range f.Parts {
				pid := id
				if j > 0 {
					pid = id + "#" + strconv.Itoa(j)
				}
				out = append(out, domain.Geometry{
					ID:         pid,
					Category:   domain.CategoryTrailPoint,
					Kind:       domain.KindLine,
					Points:     part,
					Properties: f.Properties,
				})
			}
		case domain.KindPolygon:
			out = append(out, domain.Geometry{
				ID:         id,
				Category:   domain.CategoryTrailPoint,
				Kind:       domain.KindPolygon,
				Rings:      f.Parts,
				Properties: f.Properties,
			})
		}
	}
	return out
}

// featureID prefers the trailview id, then the feature id, then the
// feature's position in its tile.
func featureID(f decode.Feature, t domain.TileCoordinate, idx int) string {
	if v, ok := f.Properties["trailview_id"]; ok && v != nil {
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	if f.HasID {
		return strconv.FormatUint(f.ID, 10)
	}
	return t.String() + "#" + strconv.Itoa(idx)
}

package usecases

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/pkg/decode"
	"github.com/samirrijal/overlaymap/internal/pkg/geospatial"
	"github.com/samirrijal/overlaymap/internal/pkg/telemetry"
)

// DensityFetcher derives activity-density imagery tiles for the viewport.
// Tiles are only described, the surface loads the images itself.
type DensityFetcher struct {
	source decode.RasterSource
	policy geospatial.ZoomPolicy
}

// NewDensityFetcher creates a new DensityFetcher.
func NewDensityFetcher(source decode.RasterSource, policy geospatial.ZoomPolicy) *DensityFetcher {
	return &DensityFetcher{source: source, policy: policy}
}

func (f *DensityFetcher) Category() domain.Category { return domain.CategoryHeatTile }

// Fetch returns one image item per tile at the capped zoom, keyed by its URL.
func (f *DensityFetcher) Fetch(ctx context.Context, vp domain.Viewport, sport domain.Sport) domain.Dataset {
	sport = sport.OrDefault()
	_, span := telemetry.Tracer().Start(ctx, telemetry.SpanFetchDensity, trace.WithAttributes(
		attribute.String(telemetry.AttrSport, string(sport)),
		attribute.Int(telemetry.AttrZoom, vp.Zoom),
	))
	defer span.End()

	ds := domain.EmptyDataset(domain.CategoryHeatTile, vp)
	ds.Sport = sport

	zoom, ok := f.policy.Effective(vp.Zoom)
	if !ok {
		return ds
	}
	tiles, err := geospatial.ResolveTiles(vp.NorthWest, vp.SouthEast, zoom)
	if err != nil {
		slog.Warn("density tiles not resolved", "error", err)
		span.SetStatus(codes.Error, err.Error())
		return ds
	}

	variant := sport.HeatVariant()
	for _, t := range tiles {
		r := f.source.Tile(variant, t)
		ds.Items = append(ds.Items, domain.Geometry{
			ID:         r.URL,
			Category:   domain.CategoryHeatTile,
			Kind:       domain.KindPolygon,
			Rings:      [][]domain.GeoPoint{r.Polygon()},
			ImageURL:   r.URL,
			Properties: map[string]any{"tile": t.String()},
		})
	}
	span.SetAttributes(attribute.Int(telemetry.AttrTileCount, len(tiles)))
	return ds
}

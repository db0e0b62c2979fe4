package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/ports"
	"github.com/samirrijal/overlaymap/internal/core/usecases"
	"github.com/samirrijal/overlaymap/internal/pkg/decode"
	"github.com/samirrijal/overlaymap/internal/pkg/geospatial"
)

var trailPolicy = geospatial.ZoomPolicy{DisableBelow: 7, Floor: 9}

// trailTile encodes a vector tile with one trail point in the middle of t.
func trailTile(t *testing.T, tile domain.TileCoordinate) []byte {
	t.Helper()
	b := geospatial.TileBounds(tile)
	f := geojson.NewFeature(orb.Point{(b.MinLon + b.MaxLon) / 2, (b.MinLat + b.MaxLat) / 2})
	f.Properties["trailview_id"] = fmt.Sprintf("tv-%d-%d", tile.X, tile.Y)
	fc := geojson.NewFeatureCollection().Append(f)

	layers := mvt.NewLayers(map[string]*geojson.FeatureCollection{"komoot_trailview": fc})
	layers.ProjectToTile(maptile.New(uint32(tile.X), uint32(tile.Y), maptile.Zoom(tile.Z)))
	data, err := mvt.Marshal(layers)
	if err != nil {
		t.Fatalf("marshal tile: %v", err)
	}
	return data
}

func TestTrailPointFetcher_AllTiles(t *testing.T) {
	var mu sync.Mutex
	var requested []domain.TileCoordinate
	tiles := &mockTiles{fetchFn: func(ctx context.Context, tile domain.TileCoordinate) ([]byte, error) {
		mu.Lock()
		requested = append(requested, tile)
		mu.Unlock()
		return trailTile(t, tile), nil
	}}

	f := usecases.NewTrailPointFetcher(tiles, "komoot_trailview", trailPolicy, 2)
	ds := f.Fetch(context.Background(), munichViewport(14), domain.SportRiding)

	if len(requested) != 6 {
		t.Fatalf("expected 6 tile requests, got %d", len(requested))
	}
	if len(ds.Items) != 6 || ds.FailedTiles != 0 {
		t.Fatalf("expected 6 items and no failures, got %d items, %d failed", len(ds.Items), ds.FailedTiles)
	}
	if ds.Items[0].ID != "tv-8717-5685" {
		t.Errorf("expected items in tile order, first is %s", ds.Items[0].ID)
	}
	for _, it := range ds.Items {
		if it.Kind != domain.KindPoint || it.Category != domain.CategoryTrailPoint {
			t.Errorf("unexpected item %+v", it)
		}
	}
}

func TestTrailPointFetcher_PartialFailure(t *testing.T) {
	bad := domain.TileCoordinate{X: 8718, Y: 5685, Z: 14}
	garbled := domain.TileCoordinate{X: 8719, Y: 5686, Z: 14}
	tiles := &mockTiles{fetchFn: func(ctx context.Context, tile domain.TileCoordinate) ([]byte, error) {
		switch tile {
		case bad:
			return nil, fmt.Errorf("%w: status 503", domain.ErrNetwork)
		case garbled:
			return []byte{0x1a, 0xff}, nil
		}
		return trailTile(t, tile), nil
	}}

	f := usecases.NewTrailPointFetcher(tiles, "komoot_trailview", trailPolicy, 4)
	ds := f.Fetch(context.Background(), munichViewport(14), domain.SportRiding)

	if ds.FailedTiles != 2 {
		t.Errorf("expected 2 failed tiles, got %d", ds.FailedTiles)
	}
	if len(ds.Items) != 4 {
		t.Fatalf("expected the 4 good tiles to survive, got %d items", len(ds.Items))
	}
	for _, it := range ds.Items {
		if it.ID == "tv-8718-5685" || it.ID == "tv-8719-5686" {
			t.Errorf("item from a failed tile: %s", it.ID)
		}
	}
}

func TestTrailPointFetcher_DisabledBelowMinZoom(t *testing.T) {
	called := false
	tiles := &mockTiles{fetchFn: func(ctx context.Context, tile domain.TileCoordinate) ([]byte, error) {
		called = true
		return nil, nil
	}}

	f := usecases.NewTrailPointFetcher(tiles, "komoot_trailview", trailPolicy, 4)
	ds := f.Fetch(context.Background(), munichViewport(6), domain.SportRiding)
	if called {
		t.Error("expected no tile requests below the minimum zoom")
	}
	if ds.Items == nil || len(ds.Items) != 0 {
		t.Errorf("expected an empty dataset, got %+v", ds.Items)
	}
}

func TestTrailPointFetcher_ZoomFloor(t *testing.T) {
	tiles := &mockTiles{fetchFn: func(ctx context.Context, tile domain.TileCoordinate) ([]byte, error) {
		if tile.Z != 9 {
			t.Errorf("expected zoom raised to 9, got %d", tile.Z)
		}
		return nil, nil
	}}

	f := usecases.NewTrailPointFetcher(tiles, "komoot_trailview", trailPolicy, 4)
	_ = f.Fetch(context.Background(), munichViewport(8), domain.SportRiding)
}

func TestTrailPointFetcher_AntimeridianIsEmpty(t *testing.T) {
	tiles := &mockTiles{fetchFn: func(ctx context.Context, tile domain.TileCoordinate) ([]byte, error) {
		t.Error("unexpected tile request")
		return nil, nil
	}}
	vp := domain.Viewport{
		NorthWest: domain.GeoPoint{Lat: 10, Lon: 179},
		SouthEast: domain.GeoPoint{Lat: 9, Lon: -179},
		Zoom:      10,
	}

	f := usecases.NewTrailPointFetcher(tiles, "komoot_trailview", trailPolicy, 4)
	ds := f.Fetch(context.Background(), vp, domain.SportRiding)
	if len(ds.Items) != 0 {
		t.Errorf("expected an empty dataset, got %d items", len(ds.Items))
	}
}

func TestTrailPointFetcher_WorldAtMaxZoomIsEmpty(t *testing.T) {
	tiles := &mockTiles{fetchFn: func(ctx context.Context, tile domain.TileCoordinate) ([]byte, error) {
		t.Error("unexpected tile request")
		return nil, nil
	}}
	vp := domain.Viewport{
		NorthWest: domain.GeoPoint{Lat: 85, Lon: -180},
		SouthEast: domain.GeoPoint{Lat: -85, Lon: 180},
		Zoom:      domain.MaxZoom,
	}

	f := usecases.NewTrailPointFetcher(tiles, "komoot_trailview", trailPolicy, 4)
	ds := f.Fetch(context.Background(), vp, domain.SportRiding)
	if len(ds.Items) != 0 || ds.FailedTiles != 0 {
		t.Errorf("expected an empty dataset, got %d items, %d failed", len(ds.Items), ds.FailedTiles)
	}
}

func TestSegmentFetcher_Fetch(t *testing.T) {
	line := decode.EncodePolyline([]domain.GeoPoint{{Lat: 48.131, Lon: 11.55}, {Lat: 48.139, Lon: 11.58}})
	search := &mockSearcher{
		exploreFn: func(ctx context.Context, b domain.Bounds, sport domain.Sport) ([]ports.SegmentRecord, error) {
			if b != munich {
				t.Errorf("expected viewport bounds, got %+v", b)
			}
			if sport != domain.SportRunning {
				t.Errorf("expected running, got %s", sport)
			}
			return []ports.SegmentRecord{
				{ID: "11", Name: "Isar climb", Polyline: line},
				{ID: "12", Name: "Broken", Polyline: "_"},
				{ID: "13", Name: "Park loop", Polyline: line},
			}, nil
		},
	}

	f := usecases.NewSegmentFetcher(search, false)
	ds := f.Fetch(context.Background(), munichViewport(10), domain.SportRunning)

	if len(ds.Items) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(ds.Items))
	}
	if ds.Items[0].ID != "11" || ds.Items[1].ID != "13" {
		t.Errorf("expected rank order 11, 13, got %s, %s", ds.Items[0].ID, ds.Items[1].ID)
	}
	if ds.Items[1].Properties["rank"] != 1 {
		t.Errorf("expected rank 1, got %v", ds.Items[1].Properties["rank"])
	}
	if l, _ := ds.Items[0].Properties["length_m"].(float64); l <= 0 {
		t.Errorf("expected a positive length, got %v", ds.Items[0].Properties["length_m"])
	}
	if ds.Stats != nil {
		t.Errorf("expected no stats without details, got %v", ds.Stats)
	}
}

func TestSegmentFetcher_NetworkFailure(t *testing.T) {
	search := &mockSearcher{
		exploreFn: func(ctx context.Context, b domain.Bounds, sport domain.Sport) ([]ports.SegmentRecord, error) {
			return nil, fmt.Errorf("%w: status 401", domain.ErrNetwork)
		},
	}

	f := usecases.NewSegmentFetcher(search, false)
	ds := f.Fetch(context.Background(), munichViewport(10), "")

	if len(ds.Items) != 0 || ds.FailedTiles != 1 {
		t.Errorf("expected an empty dataset with one failure, got %d items, %d failed", len(ds.Items), ds.FailedTiles)
	}
	if ds.Sport != domain.SportRiding {
		t.Errorf("expected the default sport, got %q", ds.Sport)
	}
}

func TestSegmentFetcher_Details(t *testing.T) {
	line := decode.EncodePolyline([]domain.GeoPoint{{Lat: 48.131, Lon: 11.55}, {Lat: 48.139, Lon: 11.58}})
	search := &mockSearcher{
		exploreFn: func(ctx context.Context, b domain.Bounds, sport domain.Sport) ([]ports.SegmentRecord, error) {
			return []ports.SegmentRecord{{ID: "11", Name: "Isar climb", Polyline: line}}, nil
		},
		detailsFn: func(ctx context.Context, id string) (ports.SegmentStats, error) {
			if id != "11" {
				t.Errorf("expected details of the top segment, got %s", id)
			}
			return ports.SegmentStats{AthleteCount: 512, StarCount: 33}, nil
		},
	}

	f := usecases.NewSegmentFetcher(search, true)
	ds := f.Fetch(context.Background(), munichViewport(10), domain.SportRiding)
	if ds.Stats["athlete_count"] != 512 || ds.Stats["star_count"] != 33 {
		t.Errorf("unexpected stats %v", ds.Stats)
	}

	search.detailsFn = func(ctx context.Context, id string) (ports.SegmentStats, error) {
		return ports.SegmentStats{}, errors.New("boom")
	}
	ds = f.Fetch(context.Background(), munichViewport(10), domain.SportRiding)
	if len(ds.Items) != 1 || ds.Stats != nil {
		t.Errorf("expected the base result to survive a details failure, got %d items, stats %v", len(ds.Items), ds.Stats)
	}
}

func TestDensityFetcher_CapAndSport(t *testing.T) {
	f := usecases.NewDensityFetcher(
		decode.RasterSource{BaseURL: "http://heat.test", Style: "hot", Version: "19"},
		geospatial.ZoomPolicy{Cap: 10},
	)

	ds := f.Fetch(context.Background(), munichViewport(14), domain.SportRunning)
	if len(ds.Items) != 1 {
		t.Fatalf("expected a single tile at the capped zoom, got %d", len(ds.Items))
	}
	want := "http://heat.test/run/hot/10/544/355@2x.png?v=19"
	if ds.Items[0].ID != want || ds.Items[0].ImageURL != want {
		t.Errorf("expected %q, got %q", want, ds.Items[0].ID)
	}
	if len(ds.Items[0].Rings) != 1 || len(ds.Items[0].Rings[0]) != 5 {
		t.Errorf("expected a closed bounding ring, got %v", ds.Items[0].Rings)
	}

	ds = f.Fetch(context.Background(), munichViewport(10), domain.SportRiding)
	if !strings.Contains(ds.Items[0].ID, "/ride/") {
		t.Errorf("expected the ride variant, got %q", ds.Items[0].ID)
	}
}

func TestDensityFetcher_WorldViewportIsEmpty(t *testing.T) {
	f := usecases.NewDensityFetcher(
		decode.RasterSource{BaseURL: "http://heat.test", Style: "hot"},
		geospatial.ZoomPolicy{Cap: 10},
	)
	vp := domain.Viewport{
		NorthWest: domain.GeoPoint{Lat: 85, Lon: -180},
		SouthEast: domain.GeoPoint{Lat: -85, Lon: 180},
		Zoom:      14,
	}

	ds := f.Fetch(context.Background(), vp, domain.SportRiding)
	if len(ds.Items) != 0 {
		t.Errorf("expected an empty dataset, got %d items", len(ds.Items))
	}
}

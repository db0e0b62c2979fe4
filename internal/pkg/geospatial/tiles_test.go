package geospatial

import (
	"errors"
	"math"
	"testing"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

var (
	munichNW = domain.GeoPoint{Lat: 48.14, Lon: 11.55}
	munichSE = domain.GeoPoint{Lat: 48.13, Lon: 11.60}
)

func TestResolveTiles_MunichScenario(t *testing.T) {
	tiles, err := ResolveTiles(munichNW, munichSE, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tiles) != 1 {
		t.Fatalf("expected 1 tile at zoom 10, got %d: %v", len(tiles), tiles)
	}
	want := domain.TileCoordinate{X: 544, Y: 355, Z: 10}
	if tiles[0] != want {
		t.Errorf("expected %v, got %v", want, tiles[0])
	}
}

func TestResolveTiles_Block(t *testing.T) {
	tiles, err := ResolveTiles(munichNW, munichSE, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// x 8717..8719, y 5685..5686
	if len(tiles) != 6 {
		t.Fatalf("expected 6 tiles at zoom 14, got %d: %v", len(tiles), tiles)
	}
	if tiles[0] != (domain.TileCoordinate{X: 8717, Y: 5685, Z: 14}) {
		t.Errorf("first tile should be the north-west tile, got %v", tiles[0])
	}
	if tiles[1] != (domain.TileCoordinate{X: 8717, Y: 5686, Z: 14}) {
		t.Errorf("tiles should run down the first column, got %v", tiles[1])
	}
	if tiles[len(tiles)-1] != (domain.TileCoordinate{X: 8719, Y: 5686, Z: 14}) {
		t.Errorf("last tile should be the south-east tile, got %v", tiles[len(tiles)-1])
	}
}

func TestResolveTiles_Deterministic(t *testing.T) {
	for z := 0; z <= 16; z++ {
		a, errA := ResolveTiles(munichNW, munichSE, z)
		b, errB := ResolveTiles(munichNW, munichSE, z)
		if errA != nil || errB != nil {
			t.Fatalf("zoom %d: unexpected errors %v %v", z, errA, errB)
		}
		set := make(map[domain.TileCoordinate]bool, len(a))
		for _, tc := range a {
			set[tc] = true
		}
		if len(set) != len(b) {
			t.Fatalf("zoom %d: sets differ in size %d vs %d", z, len(set), len(b))
		}
		for _, tc := range b {
			if !set[tc] {
				t.Fatalf("zoom %d: tile %v missing from first call", z, tc)
			}
		}
	}
}

func TestResolveTiles_SingletonPoint(t *testing.T) {
	points := []domain.GeoPoint{
		{Lat: 48.137154, Lon: 11.576124},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 0, Lon: 0},
		{Lat: 85, Lon: -179.9},
	}
	for _, p := range points {
		for z := 0; z <= domain.MaxZoom; z++ {
			tiles, err := ResolveTiles(p, p, z)
			if err != nil {
				t.Fatalf("%v z%d: unexpected error: %v", p, z, err)
			}
			if len(tiles) != 1 {
				t.Fatalf("%v z%d: expected 1 tile, got %d", p, z, len(tiles))
			}
		}
	}
}

func TestResolveTiles_MonotonicRefinement(t *testing.T) {
	viewports := [][2]domain.GeoPoint{
		{munichNW, munichSE},
		{{Lat: 52.6, Lon: 13.1}, {Lat: 52.3, Lon: 13.7}},
		{{Lat: 10, Lon: -20}, {Lat: -10, Lon: 20}},
	}
	for _, vp := range viewports {
		prev := 0
		for z := 0; z <= 14; z++ {
			tiles, err := ResolveTiles(vp[0], vp[1], z)
			if errors.Is(err, domain.ErrTooManyTiles) {
				break
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(tiles) < prev {
				t.Fatalf("tile count dropped from %d to %d at zoom %d", prev, len(tiles), z)
			}
			prev = len(tiles)
		}
	}
}

func TestResolveTiles_RejectsAntimeridian(t *testing.T) {
	_, err := ResolveTiles(domain.GeoPoint{Lat: 10, Lon: 170}, domain.GeoPoint{Lat: 0, Lon: -170}, 5)
	if !errors.Is(err, domain.ErrInvalidViewport) {
		t.Fatalf("expected ErrInvalidViewport, got %v", err)
	}
}

var (
	worldNW = domain.GeoPoint{Lat: 85, Lon: -180}
	worldSE = domain.GeoPoint{Lat: -85, Lon: 180}
)

func TestResolveTiles_TooManyTiles(t *testing.T) {
	for _, z := range []int{6, 14, domain.MaxZoom} {
		tiles, err := ResolveTiles(worldNW, worldSE, z)
		if !errors.Is(err, domain.ErrTooManyTiles) {
			t.Errorf("zoom %d: expected ErrTooManyTiles, got %v", z, err)
		}
		if tiles != nil {
			t.Errorf("zoom %d: expected no tiles, got %d", z, len(tiles))
		}
	}
}

func TestResolveTiles_AtTileLimit(t *testing.T) {
	// 32x32 tiles cover the world at zoom 5
	tiles, err := ResolveTiles(worldNW, worldSE, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tiles) != MaxTiles {
		t.Errorf("expected %d tiles, got %d", MaxTiles, len(tiles))
	}
}

func TestResolveTiles_RejectsBadZoom(t *testing.T) {
	if _, err := ResolveTiles(munichNW, munichSE, -1); !errors.Is(err, domain.ErrInvalidViewport) {
		t.Errorf("expected ErrInvalidViewport for negative zoom, got %v", err)
	}
	if _, err := ResolveTiles(munichNW, munichSE, domain.MaxZoom+1); !errors.Is(err, domain.ErrInvalidViewport) {
		t.Errorf("expected ErrInvalidViewport for deep zoom, got %v", err)
	}
}

func TestTileAt_EastEdgeSnaps(t *testing.T) {
	tc := TileAt(domain.GeoPoint{Lat: 0, Lon: 180}, 3)
	if tc.X != 7 {
		t.Errorf("expected x 7 at the east edge, got %d", tc.X)
	}
}

func TestTileBounds_World(t *testing.T) {
	b := TileBounds(domain.TileCoordinate{X: 0, Y: 0, Z: 0})
	if math.Abs(b.MinLon+180) > 1e-9 || math.Abs(b.MaxLon-180) > 1e-9 {
		t.Errorf("unexpected longitude span %v..%v", b.MinLon, b.MaxLon)
	}
	if math.Abs(b.MaxLat-85.0511) > 1e-3 || math.Abs(b.MinLat+85.0511) > 1e-3 {
		t.Errorf("unexpected latitude span %v..%v", b.MinLat, b.MaxLat)
	}
}

func TestTileCorners_Order(t *testing.T) {
	tc := domain.TileCoordinate{X: 544, Y: 355, Z: 10}
	c := TileCorners(tc)
	if len(c) != 4 {
		t.Fatalf("expected 4 corners, got %d", len(c))
	}
	tl, tr, br, bl := c[0], c[1], c[2], c[3]
	if tl[1] != tr[1] || bl[1] != br[1] || tl[0] != bl[0] || tr[0] != br[0] {
		t.Fatalf("corners are not an axis-aligned rectangle: %v", c)
	}
	if tl[1] <= bl[1] {
		t.Errorf("top edge should be north of bottom edge: %v", c)
	}
	if tl[0] >= tr[0] {
		t.Errorf("left edge should be west of right edge: %v", c)
	}
	// the munich default centre is inside this tile
	if 11.576124 < tl[0] || 11.576124 > tr[0] || 48.137154 > tl[1] || 48.137154 < bl[1] {
		t.Errorf("tile %v does not contain the munich centre: %v", tc, c)
	}
}

func TestTilePoint_MatchesBounds(t *testing.T) {
	tc := domain.TileCoordinate{X: 8717, Y: 5685, Z: 14}
	b := TileBounds(tc)

	nw := TilePoint(tc, 0, 0, 4096)
	if math.Abs(nw.Lat-b.MaxLat) > 1e-9 || math.Abs(nw.Lon-b.MinLon) > 1e-9 {
		t.Errorf("origin pixel should be the north-west corner, got %v want %v", nw, b.NorthWest())
	}
	se := TilePoint(tc, 4096, 4096, 4096)
	if math.Abs(se.Lat-b.MinLat) > 1e-9 || math.Abs(se.Lon-b.MaxLon) > 1e-9 {
		t.Errorf("extent pixel should be the south-east corner, got %v want %v", se, b.SouthEast())
	}
}

func TestZoomPolicy(t *testing.T) {
	trail := ZoomPolicy{DisableBelow: 7, Floor: 9}
	density := ZoomPolicy{Cap: 10}

	cases := []struct {
		name   string
		policy ZoomPolicy
		zoom   int
		want   int
		ok     bool
	}{
		{"trail world scale", trail, 3, 0, false},
		{"trail just below floor", trail, 7, 9, true},
		{"trail deep", trail, 15, 15, true},
		{"density low", density, 4, 4, true},
		{"density capped", density, 16, 10, true},
		{"no policy", ZoomPolicy{}, 0, 0, true},
	}
	for _, tc := range cases {
		got, ok := tc.policy.Effective(tc.zoom)
		if ok != tc.ok || got != tc.want {
			t.Errorf("%s: Effective(%d) = %d,%v want %d,%v", tc.name, tc.zoom, got, ok, tc.want, tc.ok)
		}
	}
}

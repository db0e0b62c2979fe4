package decode

import (
	"testing"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

func TestRasterSource_Tile(t *testing.T) {
	src := RasterSource{BaseURL: "http://localhost:8080/tiles/", Style: "hot", Version: "19"}
	tile := domain.TileCoordinate{X: 544, Y: 355, Z: 10}

	r := src.Tile("ride", tile)
	want := "http://localhost:8080/tiles/ride/hot/10/544/355@2x.png?v=19"
	if r.URL != want {
		t.Errorf("expected %q, got %q", want, r.URL)
	}
	if len(r.Corners) != 4 {
		t.Fatalf("expected 4 corners, got %d", len(r.Corners))
	}
	// top-left is north-west of bottom-right
	if r.Corners[0][0] >= r.Corners[2][0] || r.Corners[0][1] <= r.Corners[2][1] {
		t.Errorf("corners are not ordered TL..BL: %v", r.Corners)
	}

	ring := r.Polygon()
	if len(ring) != 5 || ring[0] != ring[4] {
		t.Errorf("expected a closed ring of 5 points, got %v", ring)
	}
}

func TestRasterSource_NoVersion(t *testing.T) {
	src := RasterSource{BaseURL: "https://heat.example", Style: "bluered"}
	r := src.Tile("run", domain.TileCoordinate{X: 1, Y: 2, Z: 3})
	if r.URL != "https://heat.example/run/bluered/3/1/2@2x.png" {
		t.Errorf("unexpected url %q", r.URL)
	}
}

package decode

import (
	"fmt"
	"strings"

	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/pkg/geospatial"
)

// RasterTile is a georeferenced image tile. The surface loads URL itself.
type RasterTile struct {
	Tile domain.TileCoordinate `json:"tile"`
	URL  string                `json:"url"`
	// Corners are [lon, lat]: top-left, top-right, bottom-right, bottom-left.
	Corners [][2]float64 `json:"corners"`
}

// RasterSource builds image URLs of the form
// {BaseURL}/{variant}/{Style}/{z}/{x}/{y}@2x.png?v={Version}.
type RasterSource struct {
	BaseURL string
	Style   string
	Version string
}

// Tile returns the descriptor for one tile of the given imagery variant.
func (s RasterSource) Tile(variant string, t domain.TileCoordinate) RasterTile {
	url := fmt.Sprintf("%s/%s/%s/%d/%d/%d@2x.png",
		strings.TrimRight(s.BaseURL, "/"), variant, s.Style, t.Z, t.X, t.Y)
	if s.Version != "" {
		url += "?v=" + s.Version
	}
	return RasterTile{
		Tile:    t,
		URL:     url,
		Corners: geospatial.TileCorners(t),
	}
}

// Polygon returns the closed bounding ring of the tile.
func (r RasterTile) Polygon() []domain.GeoPoint {
	ring := make([]domain.GeoPoint, 0, len(r.Corners)+1)
	for _, c := range r.Corners {
		ring = append(ring, domain.GeoPoint{Lat: c[1], Lon: c[0]})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return ring
}

package geospatial

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

// MaxTiles bounds the tiles one viewport may resolve to.
const MaxTiles = 1024

// ResolveTiles returns every tile between the tile containing nw and the tile
// containing se (inclusive) under the Web Mercator slippy-map scheme.
// Tiles are ordered column by column starting at the north-west tile.
// Viewports crossing the antimeridian are rejected with domain.ErrInvalidViewport,
// and viewports covering more than MaxTiles tiles with domain.ErrTooManyTiles.
func ResolveTiles(nw, se domain.GeoPoint, zoom int) ([]domain.TileCoordinate, error) {
	vp := domain.Viewport{NorthWest: nw, SouthEast: se, Zoom: zoom}
	if err := vp.Validate(); err != nil {
		return nil, err
	}

	first := TileAt(nw, zoom)
	last := TileAt(se, zoom)

	count := int64(last.X-first.X+1) * int64(last.Y-first.Y+1)
	if count > MaxTiles {
		return nil, fmt.Errorf("%w: %d tiles at zoom %d, limit %d", domain.ErrTooManyTiles, count, zoom, MaxTiles)
	}

	tiles := make([]domain.TileCoordinate, 0, count)
	for x := first.X; x <= last.X; x++ {
		for y := first.Y; y <= last.Y; y++ {
			tiles = append(tiles, domain.TileCoordinate{X: x, Y: y, Z: zoom})
		}
	}
	return tiles, nil
}

// ResolveViewport is ResolveTiles for a whole viewport.
func ResolveViewport(vp domain.Viewport) ([]domain.TileCoordinate, error) {
	return ResolveTiles(vp.NorthWest, vp.SouthEast, vp.Zoom)
}

// TileAt returns the tile containing p. Points on the east edge or beyond the
// Mercator latitude limit snap to the last tile of the row or column.
func TileAt(p domain.GeoPoint, zoom int) domain.TileCoordinate {
	t := maptile.At(orb.Point{p.Lon, p.Lat}, maptile.Zoom(zoom))
	maxIndex := uint32(1)<<uint32(zoom) - 1
	x, y := t.X, t.Y
	if x > maxIndex {
		x = maxIndex
	}
	if y > maxIndex {
		y = maxIndex
	}
	return domain.TileCoordinate{X: int(x), Y: int(y), Z: zoom}
}

// TileBounds returns the geographic bounds of a tile.
func TileBounds(t domain.TileCoordinate) domain.Bounds {
	b := maptile.New(uint32(t.X), uint32(t.Y), maptile.Zoom(t.Z)).Bound()
	return domain.Bounds{
		MinLat: b.Min.Lat(),
		MinLon: b.Min.Lon(),
		MaxLat: b.Max.Lat(),
		MaxLon: b.Max.Lon(),
	}
}

// TileCorners returns the four tile corners as [lon, lat] in image order:
// top-left, top-right, bottom-right, bottom-left.
func TileCorners(t domain.TileCoordinate) [][2]float64 {
	b := TileBounds(t)
	return [][2]float64{
		{b.MinLon, b.MaxLat},
		{b.MaxLon, b.MaxLat},
		{b.MaxLon, b.MinLat},
		{b.MinLon, b.MinLat},
	}
}

// TilePoint projects a tile-local pixel (origin top-left, extent pixels per
// side) to longitude/latitude.
func TilePoint(t domain.TileCoordinate, px, py, extent float64) domain.GeoPoint {
	n := math.Exp2(float64(t.Z))
	fx := (float64(t.X) + px/extent) / n
	fy := (float64(t.Y) + py/extent) / n
	return domain.GeoPoint{
		Lat: mercatorToLat(math.Pi * (1 - 2*fy)),
		Lon: fx*360 - 180,
	}
}

func mercatorToLat(mercatorY float64) float64 {
	return 180.0 / math.Pi * math.Atan(math.Sinh(mercatorY))
}

// ZoomPolicy clamps the zoom one overlay category fetches at.
// Zero fields impose no constraint.
type ZoomPolicy struct {
	// DisableBelow turns the category off for zooms under this level.
	DisableBelow int
	// Floor raises lower zooms to this level.
	Floor int
	// Cap lowers higher zooms to this level.
	Cap int
}

// Effective returns the zoom to resolve tiles at, or false if the category
// must not fetch at this zoom.
func (p ZoomPolicy) Effective(zoom int) (int, bool) {
	if zoom < p.DisableBelow {
		return 0, false
	}
	if zoom < p.Floor {
		zoom = p.Floor
	}
	if p.Cap > 0 && zoom > p.Cap {
		zoom = p.Cap
	}
	return zoom, true
}

package domain

import (
	"fmt"
	"math"
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// NorthWest returns the top-left corner of the box.
func (b Bounds) NorthWest() GeoPoint { return GeoPoint{Lat: b.MaxLat, Lon: b.MinLon} }

// SouthEast returns the bottom-right corner of the box.
func (b Bounds) SouthEast() GeoPoint { return GeoPoint{Lat: b.MinLat, Lon: b.MaxLon} }

// SouthWest returns the bottom-left corner of the box.
func (b Bounds) SouthWest() GeoPoint { return GeoPoint{Lat: b.MinLat, Lon: b.MinLon} }

// NorthEast returns the top-right corner of the box.
func (b Bounds) NorthEast() GeoPoint { return GeoPoint{Lat: b.MaxLat, Lon: b.MaxLon} }

// Viewport is the visible part of the rendering surface at an integer zoom.
type Viewport struct {
	NorthWest GeoPoint `json:"north_west"`
	SouthEast GeoPoint `json:"south_east"`
	Zoom      int      `json:"zoom"`
}

// ViewportFromBounds builds a viewport from surface bounds and a fractional zoom.
// The zoom is floored, the way the surface reports whole zoom levels to overlays.
func ViewportFromBounds(b Bounds, zoom float64) Viewport {
	return Viewport{
		NorthWest: b.NorthWest(),
		SouthEast: b.SouthEast(),
		Zoom:      int(math.Floor(zoom)),
	}
}

// Bounds returns the viewport as a bounding box.
func (v Viewport) Bounds() Bounds {
	return Bounds{
		MinLat: v.SouthEast.Lat,
		MinLon: v.NorthWest.Lon,
		MaxLat: v.NorthWest.Lat,
		MaxLon: v.SouthEast.Lon,
	}
}

// Validate checks corner ordering and coordinate ranges.
func (v Viewport) Validate() error {
	if v.Zoom < 0 || v.Zoom > MaxZoom {
		return fmt.Errorf("%w: zoom %d outside 0-%d", ErrInvalidViewport, v.Zoom, MaxZoom)
	}
	for _, p := range []GeoPoint{v.NorthWest, v.SouthEast} {
		if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
			return fmt.Errorf("%w: coordinate %.6f,%.6f out of range", ErrInvalidViewport, p.Lat, p.Lon)
		}
	}
	if v.NorthWest.Lat < v.SouthEast.Lat {
		return fmt.Errorf("%w: north-west corner is south of south-east corner", ErrInvalidViewport)
	}
	if v.NorthWest.Lon > v.SouthEast.Lon {
		// crossing the antimeridian is not supported
		return fmt.Errorf("%w: viewport crosses the antimeridian", ErrInvalidViewport)
	}
	return nil
}

// MaxZoom is the deepest slippy-map zoom level accepted anywhere.
const MaxZoom = 22

// TileCoordinate identifies a slippy-map tile.
type TileCoordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (t TileCoordinate) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

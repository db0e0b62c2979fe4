// Package decode turns the three overlay wire formats into canonical geometry:
// encoded polylines, binary vector tiles and georeferenced raster tiles.
package decode

import (
	"fmt"

	"github.com/twpayne/go-polyline"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

// DecodePolyline decodes an encoded polyline (1e5 precision) into ordered
// lat/lon points.
func DecodePolyline(encoded string) ([]domain.GeoPoint, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: polyline: %v", domain.ErrDecode, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: polyline: %d trailing bytes", domain.ErrDecode, len(rest))
	}

	points := make([]domain.GeoPoint, 0, len(coords))
	for _, c := range coords {
		if len(c) != 2 {
			return nil, fmt.Errorf("%w: polyline: coordinate of dimension %d", domain.ErrDecode, len(c))
		}
		points = append(points, domain.GeoPoint{Lat: c[0], Lon: c[1]})
	}
	return points, nil
}

// EncodePolyline is the inverse of DecodePolyline.
func EncodePolyline(points []domain.GeoPoint) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}

package usecases

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

// Layer and source ids.
const (
	segmentLayerPrefix  = "segment:"
	segmentSourcePrefix = "segment-src:"
	heatLayerPrefix     = "heat-layer:"
	heatSourcePrefix    = "heat-src:"

	TrailPointSourceID  = "trailpoint-src"
	TrailPointLayerID   = "trailpoint:points"
	TrailDensityLayerID = "trailpoint:density"
)

// Segment styling.
const (
	topSegmentColor   = "#0fe400"
	otherSegmentColor = "#0074e4"
	segmentLineWidth  = 5
	segmentLinkFormat = "https://www.strava.com/segments/%s"
)

// Trail point styling.
const (
	trailPointMinZoom    = 11
	trailDensityMaxZoom  = 13
	trailPointLinkFormat = "https://www.komoot.de/api/trailview/v1/images/%s?hl=de"
	trailPointLinkProp   = "trailview_id"
)

const heatOpacity = 0.7

// SegmentLayerID returns the render layer id of a segment.
func SegmentLayerID(id string) string { return segmentLayerPrefix + id }

// HeatLayerID returns the render layer id of a density image.
func HeatLayerID(url string) string { return heatLayerPrefix + url }

// orderedCategory reports whether draw order matters within the category.
func orderedCategory(c domain.Category) bool {
	return c == domain.CategorySegment
}

// BuildLayers derives the render layers of a dataset in draw order. Layer ids
// are unique; a repeated item id keeps its first occurrence.
func BuildLayers(ds domain.Dataset) []domain.RenderLayer {
	var layers []domain.RenderLayer
	switch ds.Category {
	case domain.CategorySegment:
		layers = segmentLayers(ds.Items)
	case domain.CategoryTrailPoint:
		layers = trailPointLayers(ds.Items)
	case domain.CategoryHeatTile:
		layers = heatLayers(ds.Items)
	}

	seen := make(map[string]struct{}, len(layers))
	out := layers[:0]
	for i, l := range layers {
		if _, dup := seen[l.ID]; dup {
			continue
		}
		seen[l.ID] = struct{}{}
		rank := 0
		if orderedCategory(l.Category) {
			rank = i
		}
		l.Fingerprint = fingerprint(l, rank)
		out = append(out, l)
	}
	return out
}

// segmentLayers draws the most relevant segment (the first item) last.
func segmentLayers(items []domain.Geometry) []domain.RenderLayer {
	items = uniqueByID(append([]domain.Geometry(nil), items...))
	layers := make([]domain.RenderLayer, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]

		line := make(orb.LineString, len(it.Points))
		for j, p := range it.Points {
			line[j] = orb.Point{p.Lon, p.Lat}
		}
		f := geojson.NewFeature(line)
		f.Properties["id"] = it.ID
		f.Properties["name"] = it.Name

		color := otherSegmentColor
		if i == 0 {
			color = topSegmentColor
		}

		label := it.Name
		if length, ok := it.Properties["length_m"].(float64); ok && length > 0 {
			label = fmt.Sprintf("%s (%.1f km)", it.Name, length/1000)
		}

		layers = append(layers, domain.RenderLayer{
			ID:       SegmentLayerID(it.ID),
			Category: domain.CategorySegment,
			ItemID:   it.ID,
			SourceID: segmentSourcePrefix + it.ID,
			Source:   geoJSONSource(f),
			Style: domain.LayerStyle{
				Kind:   domain.StyleLine,
				Layout: map[string]any{"line-join": "round", "line-cap": "round"},
				Paint:  map[string]any{"line-color": color, "line-width": segmentLineWidth},
			},
			Click: &domain.ClickTarget{
				Link:  fmt.Sprintf(segmentLinkFormat, it.ID),
				Label: label,
			},
		})
	}
	return layers
}

// trailPointLayers renders every item from one aggregate source through a
// density layer and a clickable point layer.
func trailPointLayers(items []domain.Geometry) []domain.RenderLayer {
	if len(items) == 0 {
		return nil
	}

	fc := geojson.NewFeatureCollection()
	for _, it := range uniqueByID(append([]domain.Geometry(nil), items...)) {
		g := orbGeometry(it)
		if g == nil {
			continue
		}
		f := geojson.NewFeature(g)
		f.ID = it.ID
		for k, v := range it.Properties {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	src := geoJSONSource(fc)

	return []domain.RenderLayer{
		{
			ID:       TrailDensityLayerID,
			Category: domain.CategoryTrailPoint,
			SourceID: TrailPointSourceID,
			Source:   src,
			Style: domain.LayerStyle{
				Kind:    domain.StyleHeatmap,
				MaxZoom: trailDensityMaxZoom,
				Paint: map[string]any{
					"heatmap-weight":    []any{"interpolate", []any{"linear"}, []any{"get", "significance"}, 0, 0, 1000, 1},
					"heatmap-intensity": []any{"interpolate", []any{"linear"}, []any{"zoom"}, 0, 1, trailDensityMaxZoom, 3},
					"heatmap-radius":    []any{"interpolate", []any{"linear"}, []any{"zoom"}, 0, 2, trailDensityMaxZoom, 20},
					"heatmap-opacity":   []any{"interpolate", []any{"linear"}, []any{"zoom"}, trailPointMinZoom, 1, trailDensityMaxZoom, 0},
				},
			},
		},
		{
			ID:       TrailPointLayerID,
			Category: domain.CategoryTrailPoint,
			SourceID: TrailPointSourceID,
			Source:   src,
			Style: domain.LayerStyle{
				Kind:    domain.StyleCircle,
				MinZoom: trailPointMinZoom,
				Paint: map[string]any{
					"circle-radius":       []any{"interpolate", []any{"linear"}, []any{"get", "significance"}, 0, 4, 1000, 12},
					"circle-color":        "#ff6c00",
					"circle-stroke-color": "#ffffff",
					"circle-stroke-width": 1,
				},
			},
			Click: &domain.ClickTarget{
				LinkFormat:   trailPointLinkFormat,
				LinkProperty: trailPointLinkProp,
			},
		},
	}
}

// heatLayers pairs one image source with one raster layer per tile.
func heatLayers(items []domain.Geometry) []domain.RenderLayer {
	layers := make([]domain.RenderLayer, 0, len(items))
	for _, it := range items {
		url := it.ImageURL
		if url == "" || len(it.Rings) == 0 || len(it.Rings[0]) < 4 {
			continue
		}
		corners := make([][2]float64, 4)
		for i, p := range it.Rings[0][:4] {
			corners[i] = [2]float64{p.Lon, p.Lat}
		}
		layers = append(layers, domain.RenderLayer{
			ID:       HeatLayerID(url),
			Category: domain.CategoryHeatTile,
			ItemID:   it.ID,
			SourceID: heatSourcePrefix + url,
			Source: domain.SourceDescriptor{
				Type:        domain.SourceImage,
				URL:         url,
				Coordinates: corners,
			},
			Style: domain.LayerStyle{
				Kind:  domain.StyleRaster,
				Paint: map[string]any{"raster-opacity": heatOpacity, "raster-fade-duration": 0},
			},
		})
	}
	return layers
}

func orbGeometry(it domain.Geometry) orb.Geometry {
	switch it.Kind {
	case domain.KindPoint:
		if len(it.Points) == 0 {
			return nil
		}
		return orb.Point{it.Points[0].Lon, it.Points[0].Lat}
	case domain.KindLine:
		ls := make(orb.LineString, len(it.Points))
		for i, p := range it.Points {
			ls[i] = orb.Point{p.Lon, p.Lat}
		}
		return ls
	case domain.KindPolygon:
		poly := make(orb.Polygon, len(it.Rings))
		for i, r := range it.Rings {
			ring := make(orb.Ring, len(r))
			for j, p := range r {
				ring[j] = orb.Point{p.Lon, p.Lat}
			}
			poly[i] = ring
		}
		return poly
	}
	return nil
}

func geoJSONSource(v any) domain.SourceDescriptor {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{"type":"FeatureCollection","features":[]}`)
	}
	return domain.SourceDescriptor{Type: domain.SourceGeoJSON, Data: data}
}

// fingerprint hashes everything a layer draws plus its draw rank.
func fingerprint(l domain.RenderLayer, rank int) uint64 {
	l.Fingerprint = 0
	data, _ := json.Marshal(struct {
		Layer domain.RenderLayer `json:"layer"`
		Rank  int                `json:"rank"`
	}{l, rank})
	return xxhash.Sum64(data)
}

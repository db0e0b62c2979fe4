package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category is one of the independent kinds of overlay data.
type Category string

const (
	CategorySegment    Category = "segment"
	CategoryTrailPoint Category = "trailPoint"
	CategoryHeatTile   Category = "heatTile"
)

// Categories lists every category in reconciliation order.
var Categories = []Category{CategorySegment, CategoryTrailPoint, CategoryHeatTile}

// ParseCategory accepts the canonical name or a lower-case alias.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(s) {
	case "segment", "segments":
		return CategorySegment, nil
	case "trailpoint", "trailpoints", "trail-points":
		return CategoryTrailPoint, nil
	case "heattile", "heattiles", "heat", "density":
		return CategoryHeatTile, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Sport selects the activity type used by segment search and density imagery.
type Sport string

const (
	SportRiding  Sport = "riding"
	SportRunning Sport = "running"
)

// ParseSport validates a sport name.
func ParseSport(s string) (Sport, error) {
	switch Sport(strings.ToLower(s)) {
	case SportRiding:
		return SportRiding, nil
	case SportRunning:
		return SportRunning, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSport, s)
}

// OrDefault returns s, or riding when s is unset.
func (s Sport) OrDefault() Sport {
	if s == "" {
		return SportRiding
	}
	return s
}

// HeatVariant is the imagery variant name the density backend uses for the sport.
func (s Sport) HeatVariant() string {
	if s == SportRiding {
		return "ride"
	}
	return "run"
}

// GeometryKind is the shape of a canonical geometry.
type GeometryKind string

const (
	KindPoint   GeometryKind = "point"
	KindLine    GeometryKind = "line"
	KindPolygon GeometryKind = "polygon"
)

// Geometry is a canonical overlay item in longitude/latitude.
// Points holds the single point of a point or the vertices of a line;
// Rings holds polygon rings, each closed.
type Geometry struct {
	ID         string         `json:"id"`
	Category   Category       `json:"category"`
	Kind       GeometryKind   `json:"kind"`
	Points     []GeoPoint     `json:"points,omitempty"`
	Rings      [][]GeoPoint   `json:"rings,omitempty"`
	Name       string         `json:"name,omitempty"`
	ImageURL   string         `json:"image_url,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Dataset is the result of one fetch for one category.
// It supersedes the previous dataset of the same category.
type Dataset struct {
	Category  Category   `json:"category"`
	Items     []Geometry `json:"items"`
	FetchedAt Viewport   `json:"fetched_at_viewport"`
	Sport     Sport      `json:"sport,omitempty"`
	// FailedTiles counts tiles whose fetch or decode failed.
	FailedTiles int `json:"failed_tiles,omitempty"`
	// Stats carries optional upstream counters (athlete_count, star_count).
	Stats map[string]int `json:"stats,omitempty"`
}

// EmptyDataset returns a dataset with no items.
func EmptyDataset(c Category, vp Viewport) Dataset {
	return Dataset{Category: c, Items: []Geometry{}, FetchedAt: vp}
}

// SourceKind is the kind of backing data source for a layer.
type SourceKind string

const (
	SourceGeoJSON SourceKind = "geojson"
	SourceImage   SourceKind = "image"
)

// SourceDescriptor describes the data a render layer draws from.
type SourceDescriptor struct {
	Type SourceKind      `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	URL  string          `json:"url,omitempty"`
	// Coordinates are image corners as [lon, lat]: top-left, top-right,
	// bottom-right, bottom-left.
	Coordinates [][2]float64 `json:"coordinates,omitempty"`
}

// StyleKind is the visual layer type.
type StyleKind string

const (
	StyleLine    StyleKind = "line"
	StyleCircle  StyleKind = "circle"
	StyleHeatmap StyleKind = "heatmap"
	StyleRaster  StyleKind = "raster"
)

// LayerStyle is the style part of an addLayer call.
type LayerStyle struct {
	Kind    StyleKind      `json:"type"`
	Layout  map[string]any `json:"layout,omitempty"`
	Paint   map[string]any `json:"paint,omitempty"`
	MinZoom float64        `json:"minzoom,omitempty"`
	MaxZoom float64        `json:"maxzoom,omitempty"`
}

// ClickTarget describes the reference link shown when a layer is clicked.
// Either Link is fixed, or LinkFormat is filled with the clicked feature's
// LinkProperty.
type ClickTarget struct {
	Link         string `json:"link,omitempty"`
	Label        string `json:"label,omitempty"`
	LinkFormat   string `json:"link_format,omitempty"`
	LinkProperty string `json:"link_property,omitempty"`
}

// Resolve returns the link and label for a click carrying the given feature properties.
func (t ClickTarget) Resolve(props map[string]any) (link, label string, ok bool) {
	if t.Link != "" {
		return t.Link, t.Label, true
	}
	if t.LinkFormat == "" || t.LinkProperty == "" {
		return "", "", false
	}
	v, found := props[t.LinkProperty]
	if !found || v == nil {
		return "", "", false
	}
	id := fmt.Sprint(v)
	if id == "" {
		return "", "", false
	}
	return fmt.Sprintf(t.LinkFormat, id), id, true
}

// RenderLayer is one visual layer on the surface together with its source.
type RenderLayer struct {
	ID       string           `json:"id"`
	Category Category         `json:"category"`
	ItemID   string           `json:"item_id,omitempty"`
	SourceID string           `json:"source_id"`
	Source   SourceDescriptor `json:"source"`
	Style    LayerStyle       `json:"style"`
	Click    *ClickTarget     `json:"click,omitempty"`
	// Fingerprint changes whenever anything drawn by the layer changes.
	Fingerprint uint64 `json:"fingerprint"`
}

// Plan is the outcome of a reconciliation: ids to remove, then layers to add in draw order.
type Plan struct {
	Category Category      `json:"category"`
	ToAdd    []RenderLayer `json:"to_add"`
	ToRemove []string      `json:"to_remove"`
}

// Empty reports whether applying the plan changes nothing.
func (p Plan) Empty() bool { return len(p.ToAdd) == 0 && len(p.ToRemove) == 0 }

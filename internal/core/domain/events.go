package domain

// EventType is an event emitted by the rendering surface or its controls.
type EventType string

const (
	EventLoad    EventType = "load"
	EventMove    EventType = "move"
	EventClick   EventType = "click"
	EventRefresh EventType = "refresh"
	EventSport   EventType = "sport"
)

// SurfaceEvent is a single event delivered to the session loop.
type SurfaceEvent struct {
	Type       EventType      `json:"type"`
	LayerID    string         `json:"layer,omitempty"`
	Bounds     Bounds         `json:"bounds"`
	Zoom       float64        `json:"zoom,omitempty"`
	LngLat     GeoPoint       `json:"lngLat"`
	Properties map[string]any `json:"properties,omitempty"`
	Sport      Sport          `json:"sport,omitempty"`
}

// EventHandler reacts to a surface event. Handlers run on the session loop.
type EventHandler func(ev SurfaceEvent)

// Popup is a reference link anchored on the map.
type Popup struct {
	At    GeoPoint `json:"at"`
	Link  string   `json:"link"`
	Label string   `json:"label"`
}

// ReconcileEvent is published after a plan was applied to a surface.
type ReconcileEvent struct {
	SessionID string   `json:"session_id"`
	Category  Category `json:"category"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Active    int      `json:"active"`
	Viewport  Viewport `json:"viewport"`
}

package telemetry

// Span names used for instrumentation.
const (
	SpanFetchSegments    = "overlay.fetch.segments"
	SpanFetchTrailPoints = "overlay.fetch.trailpoints"
	SpanFetchDensity     = "overlay.fetch.density"
	SpanFetchTile        = "overlay.fetch.tile"
	SpanReconcile        = "overlay.reconcile"
)

// Span attribute keys.
const (
	AttrCategory    = "overlay.category"
	AttrTile        = "overlay.tile"
	AttrZoom        = "overlay.zoom"
	AttrTileCount   = "overlay.tile_count"
	AttrItemCount   = "overlay.item_count"
	AttrFailedTiles = "overlay.failed_tiles"
	AttrSport       = "overlay.sport"
)

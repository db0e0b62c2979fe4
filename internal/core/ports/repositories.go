package ports

import (
	"context"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

// SegmentRecord is one ranked segment returned by a segment search.
type SegmentRecord struct {
	ID       string
	Name     string
	Polyline string
}

// SegmentStats holds optional popularity counters of a segment.
type SegmentStats struct {
	AthleteCount int
	StarCount    int
}

// SegmentSearcher finds popular route segments inside a bounding box.
type SegmentSearcher interface {
	Explore(ctx context.Context, b domain.Bounds, sport domain.Sport) ([]SegmentRecord, error)
	Details(ctx context.Context, id string) (SegmentStats, error)
}

// TileFetcher fetches the raw payload of one tile.
type TileFetcher interface {
	FetchTile(ctx context.Context, t domain.TileCoordinate) ([]byte, error)
}

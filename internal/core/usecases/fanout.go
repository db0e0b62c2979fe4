package usecases

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

// fanOut runs fn for every tile with at most limit fetches in flight and
// flattens the results in tile order. A failing tile is counted and its error
// kept, but never cancels or discards the other tiles.
func fanOut[T any](
	ctx context.Context,
	tiles []domain.TileCoordinate,
	limit int,
	fn func(ctx context.Context, t domain.TileCoordinate) ([]T, error),
) (items []T, failed int, err error) {
	type result struct {
		items []T
		err   error
	}
	results := make([]result, len(tiles))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, t := range tiles {
		g.Go(func() error {
			r, err := fn(ctx, t)
			results[i] = result{items: r, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.err != nil {
			failed++
			errs = append(errs, r.err)
			continue
		}
		items = append(items, r.items...)
	}
	return items, failed, errors.Join(errs...)
}

// fetchOutcome is the metrics label for a fetch error.
func fetchOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrDecode):
		return "decode"
	default:
		return "network"
	}
}

// uniqueByID drops items whose id was already seen, keeping the first.
func uniqueByID(items []domain.Geometry) []domain.Geometry {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}

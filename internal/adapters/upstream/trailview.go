package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

// TileClient implements ports.TileFetcher for {baseURL}/{z}/{x}/{y}{suffix}.
type TileClient struct {
	baseURL string
	suffix  string
	client  *http.Client
}

// NewTileClient creates a new TileClient. suffix is appended to the y
// component, e.g. ".vector.pbf".
func NewTileClient(baseURL, suffix string, client *http.Client) *TileClient {
	return &TileClient{baseURL: strings.TrimRight(baseURL, "/"), suffix: suffix, client: client}
}

// FetchTile returns the raw tile payload. Tiles the backend reports as absent
// are returned empty.
func (c *TileClient) FetchTile(ctx context.Context, t domain.TileCoordinate) ([]byte, error) {
	url := fmt.Sprintf("%s/%d/%d/%d%s", c.baseURL, t.Z, t.X, t.Y, c.suffix)
	h := http.Header{}
	h.Set("Accept", "application/x-protobuf, application/vnd.mapbox-vector-tile")
	body, err := get(ctx, c.client, url, h, true)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", t, err)
	}
	return body, nil
}

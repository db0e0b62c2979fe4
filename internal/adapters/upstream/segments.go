package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/ports"
)

// SegmentClient implements ports.SegmentSearcher against a segment explore API.
type SegmentClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewSegmentClient creates a new SegmentClient. token is sent as a bearer token.
func NewSegmentClient(baseURL, token string, client *http.Client) *SegmentClient {
	return &SegmentClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

type exploreResponse struct {
	Segments []struct {
		ID     json.Number `json:"id"`
		Name   string      `json:"name"`
		Points string      `json:"points"`
	} `json:"segments"`
}

type detailsResponse struct {
	AthleteCount int `json:"athlete_count"`
	StarCount    int `json:"star_count"`
}

// Explore lists the segments inside b, most relevant first.
func (c *SegmentClient) Explore(ctx context.Context, b domain.Bounds, sport domain.Sport) ([]ports.SegmentRecord, error) {
	q := url.Values{}
	q.Set("bounds", strings.Join([]string{
		formatCoord(b.MinLat), formatCoord(b.MinLon), formatCoord(b.MaxLat), formatCoord(b.MaxLon),
	}, ","))
	q.Set("activity_type", string(sport))

	body, err := get(ctx, c.client, c.baseURL+"/segments/explore?"+q.Encode(), c.header(), false)
	if err != nil {
		return nil, fmt.Errorf("explore segments: %w", err)
	}

	var resp exploreResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: explore response: %v", domain.ErrDecode, err)
	}

	out := make([]ports.SegmentRecord, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		out = append(out, ports.SegmentRecord{ID: s.ID.String(), Name: s.Name, Polyline: s.Points})
	}
	return out, nil
}

// Details returns the popularity counters of one segment.
func (c *SegmentClient) Details(ctx context.Context, id string) (ports.SegmentStats, error) {
	body, err := get(ctx, c.client, c.baseURL+"/segments/"+url.PathEscape(id), c.header(), false)
	if err != nil {
		return ports.SegmentStats{}, fmt.Errorf("segment %s: %w", id, err)
	}
	var resp detailsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ports.SegmentStats{}, fmt.Errorf("%w: segment %s: %v", domain.ErrDecode, id, err)
	}
	return ports.SegmentStats{AthleteCount: resp.AthleteCount, StarCount: resp.StarCount}, nil
}

func (c *SegmentClient) header() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Package upstream implements the overlay backends: segment search and
// trail-point vector tiles.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/samirrijal/overlaymap/internal/core/domain"
)

// maxBody bounds every upstream response.
const maxBody = 16 << 20

// NewHTTPClient returns the client shared by the upstream adapters. A zero
// timeout leaves requests bounded only by their context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// get performs a GET and returns the body. Transport errors and non-2xx
// statuses are wrapped with ErrNetwork. A 204 or 404 yields a nil body when
// allowEmpty is set.
func get(ctx context.Context, client *http.Client, url string, header http.Header, allowEmpty bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrNetwork, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if allowEmpty && (resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound) {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d for %s", domain.ErrNetwork, resp.StatusCode, req.URL.Path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrNetwork, err)
	}
	return body, nil
}

package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/ports"
	"github.com/samirrijal/overlaymap/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Segments    ports.OverlayFetcher
	TrailPoints ports.OverlayFetcher
	Density     ports.OverlayFetcher
	Publisher   ports.EventPublisher
	Events      ports.EventSubscriber
	NATS        *nats.Conn
	Defaults    SessionDefaults
	// ProxyTarget is the density imagery origin served under /tiles/*.
	// Empty disables the proxy.
	ProxyTarget string
	// OpenAPIPath is served at /docs/openapi.yaml.
	OpenAPIPath string
}

// SessionDefaults is the initial map state sent to new sessions.
type SessionDefaults struct {
	Center domain.GeoPoint
	Zoom   float64
	Sport  domain.Sport
}

func (d *Dependencies) fetcher(c domain.Category) ports.OverlayFetcher {
	switch c {
	case domain.CategorySegment:
		return d.Segments
	case domain.CategoryTrailPoint:
		return d.TrailPoints
	case domain.CategoryHeatTile:
		return d.Density
	}
	return nil
}

func (d *Dependencies) fetchers() usecases.Fetchers {
	return usecases.Fetchers{
		Segments:    d.Segments,
		TrailPoints: d.TrailPoints,
		Density:     d.Density,
	}
}

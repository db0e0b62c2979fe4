package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlaymap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "overlaymap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "overlaymap",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Overlay metrics
	TileFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlaymap",
		Subsystem: "overlay",
		Name:      "tile_fetches_total",
		Help:      "Total upstream fetches by category and outcome (ok, network, decode)",
	}, []string{"category", "outcome"})

	TileFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "overlaymap",
		Subsystem: "overlay",
		Name:      "tile_fetch_duration_seconds",
		Help:      "Duration of a single upstream fetch",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"category"})

	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlaymap",
		Subsystem: "session",
		Name:      "refreshes_total",
		Help:      "Refresh triggers by outcome (started, rejected)",
	}, []string{"outcome"})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlaymap",
		Subsystem: "overlay",
		Name:      "reconciliations_total",
		Help:      "Total reconciliations applied to a surface",
	}, []string{"category"})

	LayerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlaymap",
		Subsystem: "overlay",
		Name:      "layer_ops_total",
		Help:      "Layer mutations applied to surfaces (add, remove)",
	}, []string{"op"})

	ActiveLayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "overlaymap",
		Subsystem: "overlay",
		Name:      "active_layers",
		Help:      "Render layers currently active across all sessions",
	}, []string{"category"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overlaymap",
		Subsystem: "ws",
		Name:      "active_sessions",
		Help:      "Current number of WebSocket overlay sessions",
	})

	ActiveRelays = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overlaymap",
		Subsystem: "ws",
		Name:      "active_event_relays",
		Help:      "Current number of WebSocket event relay connections",
	})
)

// normalizePath reduces path cardinality for the heat tile proxy.
func normalizePath(path string) string {
	if strings.HasPrefix(path, "/tiles/") {
		return "/tiles/*"
	}
	return path
}

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		path = normalizePath(path)
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

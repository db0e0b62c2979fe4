package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/overlaymap/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

func isTileProxy(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), "/tiles/")
}

// SetupRoutes registers all REST, GraphQL, WebSocket and proxy routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip); density imagery is already compressed
	app.Use(compress.New(compress.Config{
		Next:  isTileProxy,
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP. A map view loads
	// dozens of density tiles at once, so the proxy is exempt.
	app.Use(limiter.New(limiter.Config{
		Next:       isTileProxy,
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited",
				"too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/tiles", timeout.NewWithContext(TilesHandler(), requestTimeout))
	v1.Get("/overlays/:category", timeout.NewWithContext(OverlayHandler(deps), requestTimeout))
	v1.Get("/overlays/:category/layers", timeout.NewWithContext(OverlayLayersHandler(deps), requestTimeout))
	v1.Post("/polyline/decode", DecodePolylineHandler())
	v1.Post("/polyline/encode", EncodePolylineHandler())

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, deps.OpenAPIPath)

	if deps.ProxyTarget != "" {
		app.All("/tiles/*", HeatProxyHandler(deps.ProxyTarget))
	}

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(SessionSocketHandler(deps)))
	if deps.Events != nil {
		app.Get("/ws/events", websocket.New(EventsSocketHandler(deps.Events)))
	}
}

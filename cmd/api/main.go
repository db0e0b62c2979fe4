package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/overlaymap/internal/adapters/http"
	natsadapter "github.com/samirrijal/overlaymap/internal/adapters/nats"
	"github.com/samirrijal/overlaymap/internal/adapters/upstream"
	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/core/usecases"
	"github.com/samirrijal/overlaymap/internal/pkg/config"
	"github.com/samirrijal/overlaymap/internal/pkg/decode"
	"github.com/samirrijal/overlaymap/internal/pkg/geospatial"
	"github.com/samirrijal/overlaymap/internal/pkg/logging"
	"github.com/samirrijal/overlaymap/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("overlaymap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	sport, err := domain.ParseSport(cfg.Overlay.DefaultSport)
	if err != nil {
		log.Fatalf("default sport: %v", err)
	}

	deps := &http.Dependencies{
		Defaults: http.SessionDefaults{
			Center: domain.GeoPoint{Lat: cfg.Overlay.DefaultCenterLat, Lon: cfg.Overlay.DefaultCenterLng},
			Zoom:   cfg.Overlay.DefaultZoom,
			Sport:  sport,
		},
		ProxyTarget: cfg.Upstream.ProxyTarget,
	}

	// NATS: reconcile events are published through JetStream and relayed to
	// dashboards over a plain connection. Sessions work without either.
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		deps.Publisher = pub
	}

	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats relay conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
		deps.NATS = natsConn
		deps.Events = natsadapter.NewSubscriber(natsConn)
	}

	// Upstream clients
	client := upstream.NewHTTPClient(time.Duration(cfg.Upstream.Timeout) * time.Second)

	if cfg.Upstream.SegmentsToken != "" {
		segments := upstream.NewSegmentClient(cfg.Upstream.SegmentsURL, cfg.Upstream.SegmentsToken, client)
		deps.Segments = usecases.NewSegmentFetcher(segments, cfg.Upstream.SegmentDetails)
	} else {
		slog.Warn("segment overlay disabled: upstream.segments_token is not set")
	}

	tiles := upstream.NewTileClient(cfg.Upstream.TrailviewURL, cfg.Upstream.TrailviewExt, client)
	deps.TrailPoints = usecases.NewTrailPointFetcher(tiles, cfg.Upstream.TrailviewLayer,
		geospatial.ZoomPolicy{
			DisableBelow: cfg.Overlay.TrailPointDisableBelow,
			Floor:        cfg.Overlay.TrailPointMinZoom,
		},
		cfg.Overlay.MaxConcurrentTiles,
	)

	deps.Density = usecases.NewDensityFetcher(
		decode.RasterSource{
			BaseURL: cfg.Upstream.HeatmapURL,
			Style:   cfg.Upstream.HeatmapStyle,
			Version: cfg.Upstream.HeatmapVersion,
		},
		geospatial.ZoomPolicy{Cap: cfg.Overlay.DensityMaxZoom},
	)

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // polylines of long routes
		AppName:      "Overlay Map API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

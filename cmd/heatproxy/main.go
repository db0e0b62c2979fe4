// Command heatproxy serves density imagery from the configured origin with
// permissive CORS, for maps that cannot load the origin directly.
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
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/samirrijal/overlaymap/internal/adapters/http"
	"github.com/samirrijal/overlaymap/internal/pkg/config"
	"github.com/samirrijal/overlaymap/internal/pkg/logging"
	"github.com/samirrijal/overlaymap/internal/pkg/metrics"
)

func main() {
	cfg, err := config.Load("overlaymap-heatproxy")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	if cfg.Upstream.ProxyTarget == "" {
		log.Fatal("upstream.proxy_target is required")
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		AppName:      "Overlay Map heat proxy",
	})
	app.Use(recover.New())
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())
	app.Use(requestid.New())
	app.Use(http.RequestIDLogMiddleware())
	app.Use(http.AccessLogMiddleware())
	app.All("/*", http.HeatProxyHandler(cfg.Upstream.ProxyTarget))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("heat proxy starting", "addr", addr, "target", cfg.Upstream.ProxyTarget)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	slog.Info("heat proxy stopped")
}

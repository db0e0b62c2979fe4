package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Overlay   OverlayConfig   `mapstructure:"overlay"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	AllowOrigins string `mapstructure:"allow_origins"`
}

// UpstreamConfig points at the three overlay backends and the heat tile proxy target.
type UpstreamConfig struct {
	SegmentsURL    string `mapstructure:"segments_url"`
	SegmentsToken  string `mapstructure:"segments_token"`
	SegmentDetails bool   `mapstructure:"segment_details"`
	TrailviewURL   string `mapstructure:"trailview_url"`
	TrailviewLayer string `mapstructure:"trailview_layer"`
	TrailviewExt   string `mapstructure:"trailview_ext"`
	HeatmapURL     string `mapstructure:"heatmap_url"`
	HeatmapStyle   string `mapstructure:"heatmap_style"`
	HeatmapVersion string `mapstructure:"heatmap_version"`
	ProxyTarget    string `mapstructure:"proxy_target"`
	Timeout        int    `mapstructure:"timeout"`
}

// OverlayConfig holds the per-category zoom policies and session defaults.
type OverlayConfig struct {
	TrailPointDisableBelow int     `mapstructure:"trailpoint_disable_below"`
	TrailPointMinZoom      int     `mapstructure:"trailpoint_min_zoom"`
	DensityMaxZoom         int     `mapstructure:"density_max_zoom"`
	MaxConcurrentTiles     int     `mapstructure:"max_concurrent_tiles"`
	DefaultSport           string  `mapstructure:"default_sport"`
	DefaultCenterLat       float64 `mapstructure:"default_center_lat"`
	DefaultCenterLng       float64 `mapstructure:"default_center_lng"`
	DefaultZoom            float64 `mapstructure:"default_zoom"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from .env, file and environment variables.
func Load(service string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.allow_origins", "*")
	v.SetDefault("upstream.segments_url", "https://www.strava.com/api/v3")
	v.SetDefault("upstream.segments_token", "")
	v.SetDefault("upstream.segment_details", false)
	v.SetDefault("upstream.trailview_url", "https://trailview-tiles.maps.komoot.net/tiles/v2")
	v.SetDefault("upstream.trailview_layer", "komoot_trailview")
	v.SetDefault("upstream.trailview_ext", ".vector.pbf")
	v.SetDefault("upstream.heatmap_url", "http://localhost:8000/tiles")
	v.SetDefault("upstream.heatmap_style", "blue")
	v.SetDefault("upstream.heatmap_version", "19")
	v.SetDefault("upstream.proxy_target", "https://heatmap-external-a.strava.com")
	v.SetDefault("upstream.timeout", 0) // seconds; 0 waits for the upstream indefinitely
	v.SetDefault("overlay.trailpoint_disable_below", 7)
	v.SetDefault("overlay.trailpoint_min_zoom", 9)
	v.SetDefault("overlay.density_max_zoom", 10)
	v.SetDefault("overlay.max_concurrent_tiles", 8)
	v.SetDefault("overlay.default_sport", "riding")
	v.SetDefault("overlay.default_center_lat", 48.137154)
	v.SetDefault("overlay.default_center_lng", 11.576124)
	v.SetDefault("overlay.default_zoom", 10)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: OVERLAYMAP_UPSTREAM_SEGMENTS_TOKEN → upstream.segments_token
	v.SetEnvPrefix("OVERLAYMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Upstream.SegmentsURL == "" {
		errs = append(errs, "upstream.segments_url is required")
	}
	if c.Upstream.TrailviewURL == "" {
		errs = append(errs, "upstream.trailview_url is required")
	}
	if c.Upstream.TrailviewLayer == "" {
		errs = append(errs, "upstream.trailview_layer is required")
	}
	if c.Upstream.HeatmapURL == "" {
		errs = append(errs, "upstream.heatmap_url is required")
	}
	if c.Upstream.Timeout < 0 {
		errs = append(errs, "upstream.timeout must not be negative")
	}
	if c.Overlay.TrailPointDisableBelow < 0 || c.Overlay.TrailPointDisableBelow > c.Overlay.TrailPointMinZoom {
		errs = append(errs, fmt.Sprintf("overlay.trailpoint_disable_below must be 0-%d, got %d",
			c.Overlay.TrailPointMinZoom, c.Overlay.TrailPointDisableBelow))
	}
	if c.Overlay.TrailPointMinZoom < 0 || c.Overlay.TrailPointMinZoom > 22 {
		errs = append(errs, fmt.Sprintf("overlay.trailpoint_min_zoom must be 0-22, got %d", c.Overlay.TrailPointMinZoom))
	}
	if c.Overlay.DensityMaxZoom < 0 || c.Overlay.DensityMaxZoom > 22 {
		errs = append(errs, fmt.Sprintf("overlay.density_max_zoom must be 0-22, got %d", c.Overlay.DensityMaxZoom))
	}
	if c.Overlay.MaxConcurrentTiles <= 0 {
		errs = append(errs, "overlay.max_concurrent_tiles must be positive")
	}
	switch strings.ToLower(c.Overlay.DefaultSport) {
	case "riding", "running":
	default:
		errs = append(errs, fmt.Sprintf("overlay.default_sport must be riding or running, got %q", c.Overlay.DefaultSport))
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/airshift/studio/internal/v1/config"
	"github.com/airshift/studio/internal/v1/health"
	"github.com/airshift/studio/internal/v1/logging"
	"github.com/airshift/studio/internal/v1/middleware"
	"github.com/airshift/studio/internal/v1/registry"
	"github.com/airshift/studio/internal/v1/room"
	"github.com/airshift/studio/internal/v1/station"
	"github.com/airshift/studio/internal/v1/stream"
	"github.com/airshift/studio/internal/v1/tracing"
	"github.com/airshift/studio/internal/v1/transport"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on environment variables")
	}

	// Validate environment and read the station manifest before binding
	// anything; an invalid configuration refuses startup.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Tracing (optional) ---
	if cfg.OTELCollector != "" {
		tp, err := tracing.InitTracer(context.Background(), "signaling-core", cfg.OTELCollector)
		if err != nil {
			slog.Error("Failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
		slog.Info("✅ OTLP tracing initialized", "collector", cfg.OTELCollector)
	}

	// --- Shared signaling state ---
	// Created once here and passed explicitly into the hub.
	reg := registry.New()
	rooms := room.NewManager(reg)

	var sinkCfg *stream.Config
	if cfg.Station.Sink != nil {
		sinkCfg = &stream.Config{
			URL:                cfg.Station.Sink.URL,
			Username:           cfg.Station.Sink.Username,
			Password:           cfg.Station.Sink.Password,
			ContentType:        cfg.Station.Sink.ContentType,
			StationName:        cfg.Station.Name,
			StationDescription: cfg.Station.Description,
			Public:             cfg.Station.Public,
		}
		slog.Info("✅ Streaming sink configured", "url", cfg.Station.Sink.URL)
	} else {
		slog.Info("No streaming sink configured, start-stream will be rejected")
	}
	streams := stream.NewRelay(sinkCfg)

	var allowedOrigins []string
	if cfg.AllowedOrigins != "" {
		allowedOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}

	hub := transport.NewHub(reg, rooms, streams, allowedOrigins)

	// --- Set up Server ---
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if cfg.OTELCollector != "" {
		router.Use(otelgin.Middleware("signaling-core"))
	}

	// The station document is consumed by browsers served from other
	// origins, so CORS allows any origin.
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	router.Use(cors.New(corsConfig))

	// Routing
	router.GET("/ws", hub.ServeWs)

	stationHandler := station.NewHandler(cfg.Station)
	router.GET("/api/station", stationHandler.GetStation)

	healthHandler := health.NewHandler()
	router.GET("/health", healthHandler.Liveness)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Start the server.
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	go func() {
		slog.Info("Signaling server starting", "port", cfg.Port, "station", cfg.Station.StationID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close all connections; new upgrades are refused from here on, and every
	// session runs its cleanup (room departure, registry release, stream
	// teardown).
	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("Error during hub shutdown:", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown:", "error", err)
	}

	slog.Info("Server exiting")
}

// Package main provides the entry point for the FleetSentry server.
// This is a vehicle telemetry diagnosis pipeline with behavioral anomaly
// detection and risk alerting.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fleetsentry/fleetsentry/internal/alerts"
	"github.com/fleetsentry/fleetsentry/internal/api"
	"github.com/fleetsentry/fleetsentry/internal/config"
	"github.com/fleetsentry/fleetsentry/internal/diagnosis"
	"github.com/fleetsentry/fleetsentry/internal/ingestion"
	"github.com/fleetsentry/fleetsentry/internal/inspection"
	"github.com/fleetsentry/fleetsentry/internal/observability"
	"github.com/fleetsentry/fleetsentry/internal/scoring"
	"github.com/fleetsentry/fleetsentry/internal/ueba"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("FleetSentry %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load failed (%v), using defaults\n", err)
		cfg = config.DefaultConfig()
	}

	obs, err := observability.New(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		LogLevel:       cfg.Observability.LogLevel,
		LogFormat:      cfg.Observability.LogFormat,
		TracingEnabled: cfg.Observability.TracingEnabled,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		SamplingRate:   cfg.Observability.SamplingRate,
		MetricsEnabled: cfg.Observability.MetricsEnabled,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Observability init failed: %v\n", err)
		os.Exit(1)
	}
	logger := obs.Logger()

	logger.Info("Starting FleetSentry",
		zap.String("version", Version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs.StartSystemMetricsCollector(ctx)

	// Redis backs the alert store and inspection rate limiter when enabled;
	// everything degrades to in-process state without it.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.RedisPassword(),
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unreachable, falling back to in-memory state", zap.Error(err))
			redisClient = nil
		}
		pingCancel()
	}

	var alertStore alerts.Store
	if redisClient != nil && cfg.Redis.AlertStore {
		alertStore = alerts.NewRedisStore(redisClient)
		logger.Info("Alert store: redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		alertStore = alerts.NewMemoryStore()
		logger.Info("Alert store: memory")
	}

	pipeline := diagnosis.NewPipeline(scoring.NewScorer())
	alertSvc := alerts.NewService(alertStore, cfg.Pipeline.AlertThreshold)
	verdicts := ueba.NewVerdictCache()
	inspector := inspection.New(inspection.Config{
		RateWindow:  cfg.Inspection.RateWindow,
		RateMax:     cfg.Inspection.RateMax,
		LogCapacity: cfg.Inspection.LogCapacity,
	}, redisClient, logger)
	if m := obs.Metrics(); m != nil {
		inspector.InstrumentFindings(m.InspectionFindings)
	}

	handlers := api.New(pipeline, alertSvc, verdicts, inspector, obs, cfg.Server.StreamInterval)

	var consumer *ingestion.Consumer
	if cfg.NATS.Enabled {
		consumer, err = ingestion.NewConsumer(ingestion.Config{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Queue:   cfg.NATS.Queue,
		}, pipeline, alertSvc, verdicts, obs)
		if err != nil {
			logger.Warn("NATS consumer unavailable", zap.Error(err))
		} else if err := consumer.Start(); err != nil {
			logger.Warn("NATS subscription failed", zap.Error(err))
			consumer.Close()
			consumer = nil
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.HTTPMetrics)
	r.Use(inspector.Middleware)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/health", handleHealth)
		r.Get("/ready", readyHandler(redisClient))
		r.Method(http.MethodGet, "/metrics", obs.MetricsHandler())

		handlers.Routes(r)
	})

	// The stream stays outside the timeout group; sessions are long-lived.
	r.Get("/ws/telemetry", handlers.TelemetryStream)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	sig := <-sigChan
	logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("Consumer shutdown error", zap.Error(err))
		}
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Error("Observability shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","version":"` + Version + `"}`))
}

// readyHandler reports readiness; with Redis configured it checks the
// connection, otherwise the in-process pipeline is always ready.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if redisClient != nil {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"degraded","redis":"unreachable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}

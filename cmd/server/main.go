package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderviews/internal/config"
	"orderviews/internal/consumer"
	"orderviews/internal/engine"
	"orderviews/internal/gateway"
	"orderviews/internal/handlers"
	"orderviews/internal/instrumentation"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("orderviews_service_starting",
		"processor_id", cfg.ProcessorID,
		"kafka_brokers", cfg.KafkaBrokers,
		"orders_topic", cfg.OrdersTopic,
		"consumer_group", cfg.ConsumerGroup,
		"redis_url", cfg.RedisURL,
		"timeline_max_size", cfg.TimelineMaxSize,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis persistence gateway
	store, err := gateway.New(cfg.RedisURL, cfg.RedisPassword, logger)
	if err != nil {
		logger.Error("failed to create persistence gateway", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	logger.Info("gateway_initialized")

	// Initialize Prometheus metrics
	metrics := instrumentation.NewMetrics()
	logger.Info("metrics_initialized")

	// Start Prometheus HTTP server for metrics endpoint
	go func() {
		addr := fmt.Sprintf(":%d", cfg.PrometheusPort)
		http.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics_server_starting", "addr", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error("metrics_server_failed", "error", err)
		}
	}()

	// Initialize the view engine
	eng := engine.New(store, engine.Config{
		ProcessorID:     cfg.ProcessorID,
		TimelineMaxSize: cfg.TimelineMaxSize,
		SaveTimeout:     cfg.SaveTimeout,
	}, logger, metrics)

	logger.Info("engine_initialized", "processor_id", cfg.ProcessorID)

	// Initialize the Kafka order consumer
	cons, err := consumer.New(consumer.Config{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.OrdersTopic,
		GroupID:        cfg.ConsumerGroup,
		Workers:        cfg.ConsumerWorkers,
		BatchSize:      cfg.BatchSize,
		CommitInterval: cfg.CommitInterval,
	}, eng, logger)
	if err != nil {
		logger.Error("failed to create consumer", "error", err)
		os.Exit(1)
	}
	defer cons.Close()

	// Build the HTTP surface over the engine
	viewHandlers := handlers.NewViewHandlers(eng, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(handlers.LoggingMiddleware(logger))
	r.Use(handlers.TimeoutMiddleware(cfg.HTTPTimeout, logger))
	r.Group(viewHandlers.Routes)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http_server_listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server_error", "error", err)
			os.Exit(1)
		}
	}()

	// Start consumer workers
	errChan := make(chan error, 1)
	go func() {
		if err := cons.Start(ctx); err != nil && err != context.Canceled {
			errChan <- err
		}
	}()

	logger.Info("orderviews_service_running", "status", "healthy")

	// Wait for shutdown signal or consumer error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown_signal_received", "signal", sig.String())
		cancel()
	case err := <-errChan:
		logger.Error("consumer_error", "error", err)
		cancel()
	}

	// Graceful HTTP shutdown, then a final best-effort persist
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}

	if result := eng.Execute(shutdownCtx, engine.Command{Kind: engine.CmdPersist}); !result.Success {
		logger.Warn("final_persist_failed", "error", result.Error)
	}

	logger.Info("orderviews_service_stopped")
}

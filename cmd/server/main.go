package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/config"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/health"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/inference"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/metrics"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/scheduler"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/server"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/transcribe"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "sensevoice-rknn-api"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary
	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("address", cfg.Server.Address),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("max_batch_size", cfg.Audio.MaxBatchSize),
		slog.Float64("speech_scale", float64(cfg.Transcription.SpeechScale)),
		slog.Int("queue_depth", cfg.Scheduler.QueueDepth),
		slog.Float64("slot_timeout", cfg.Scheduler.SlotTimeout),
		slog.String("inference_mode", cfg.Inference.Mode),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics on a dedicated registry
	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)
	logger.Info("Prometheus metrics initialized")

	// Health tracker starts in the starting state until the model is up
	tracker := health.NewTracker(health.Config{
		FailureWindow:     cfg.Health.FailureWindow,
		DegradedThreshold: cfg.Health.DegradedThreshold,
		RecoverySuccesses: cfg.Health.RecoverySuccesses,
	})

	// Create the inference engine
	engine, err := newEngine(cfg)
	if err != nil {
		logger.Error("Failed to create inference engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Load the model. A failed load pins the service unhealthy so that
	// probes report the state instead of the process flapping.
	loadStart := time.Now()
	if err := engine.Load(ctx); err != nil {
		tracker.ModelLoadFailed()
		logger.Error("Failed to load model",
			slog.String("mode", cfg.Inference.Mode),
			slog.String("model_path", cfg.Inference.ModelPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	loadTime := time.Since(loadStart)
	tracker.ModelLoaded()
	appMetrics.ObserveModelLoad(loadTime.Seconds())
	logger.Info("Model loaded",
		slog.String("mode", cfg.Inference.Mode),
		slog.Duration("load_time", loadTime),
	)

	// Initialize the accelerator scheduler
	sched := scheduler.New(engine, scheduler.Config{
		QueueDepth:  cfg.Scheduler.QueueDepth,
		SlotTimeout: cfg.Scheduler.GetSlotTimeoutDuration(),
	}, logger)
	logger.Info("Inference scheduler initialized",
		slog.Int("queue_depth", cfg.Scheduler.QueueDepth),
		slog.Duration("slot_timeout", cfg.Scheduler.GetSlotTimeoutDuration()),
	)

	// Initialize the transcription orchestrator
	orch := transcribe.NewOrchestrator(sched, appMetrics, tracker, logger)

	// Initialize and start the HTTP API server
	httpServer := server.NewHTTPServer(cfg, logger, orch, tracker, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop the scheduler (reject queued work, wait for the in-flight call)
	sched.Close()

	// Release the accelerator
	if err := engine.Close(); err != nil {
		logger.Error("Error closing inference engine", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
}

// newEngine creates the inference engine selected by configuration
func newEngine(cfg *config.Config) (inference.Engine, error) {
	switch cfg.Inference.Mode {
	case "exec":
		return inference.NewExecEngine(cfg.Inference)
	case "mock":
		return inference.NewMockEngine(), nil
	default:
		return nil, fmt.Errorf("unknown inference mode '%s'", cfg.Inference.Mode)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

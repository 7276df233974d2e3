package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/transcriber/internal/api"
	"github.com/lexiqai/transcriber/internal/config"
	"github.com/lexiqai/transcriber/internal/diarization"
	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/orchestrator"
	"github.com/lexiqai/transcriber/internal/resilience"
	"github.com/lexiqai/transcriber/internal/stt"
	"github.com/lexiqai/transcriber/internal/textnorm"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	grpcServiceName       = "transcriber"
	readinessPollInterval = 15 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("grpc_port", cfg.GRPCPort).
		Str("transcriber", cfg.TranscriberBackend).
		Str("parser", cfg.ParserBackend).
		Str("pyannote_url", cfg.PyannoteURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Transcription service starting")

	// Model handles are created once and shared by every request
	diarizer := diarization.NewDiarizer(diarization.NewPyannoteClient(diarization.PyannoteConfig{
		BaseURL:                    cfg.PyannoteURL,
		Model:                      cfg.PyannoteModel,
		Token:                      cfg.PyannoteToken,
		Timeout:                    config.Seconds(cfg.PyannoteTimeout),
		CircuitBreakerMaxFailures:  cfg.CircuitBreakerMaxFailures,
		CircuitBreakerResetTimeout: config.Seconds(cfg.CircuitBreakerResetTimeout),
	}))

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create speech transcriber")
	}

	pipeline := orchestrator.New(diarizer, transcriber, orchestrator.Config{
		Concurrency:      cfg.PipelineConcurrency,
		SilenceThreshold: cfg.SilenceRMSThreshold,
	})
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing model handles")
		}
	}()

	if cfg.ParserBackend == config.ParserRules {
		logger.Warn().Msg("Rules parser selected: fillers are removed even when they govern other words")
	}
	normalizer := textnorm.NewNormalizer(newParser(cfg), cfg.StopwordsMaxPasses)
	defer normalizer.Close()

	// Readiness checks every model backend
	checks := map[string]observability.HealthCheckFunc{
		"diarizer:" + pipeline.DiarizerName(): func(ctx context.Context) (bool, error) {
			return pipeline.DiarizerAvailable(ctx), nil
		},
		"transcriber:" + pipeline.TranscriberName(): func(ctx context.Context) (bool, error) {
			return pipeline.TranscriberAvailable(ctx), nil
		},
		"parser:" + normalizer.Name(): func(ctx context.Context) (bool, error) {
			return normalizer.IsAvailable(ctx), nil
		},
	}

	server := api.NewServer(pipeline, normalizer, api.Config{
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: config.Seconds(cfg.RequestTimeout),
		Retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    config.Millis(cfg.RetryInitialBackoff),
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		MetricsEnabled:  cfg.MetricsEnabled,
		ReadinessChecks: checks,
	})
	if cfg.MetricsEnabled {
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Uploads and full pipeline runs are slow, so only the header read is
	// bounded tightly
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       config.Seconds(cfg.RequestTimeout),
		WriteTimeout:      config.Seconds(cfg.RequestTimeout) + time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// gRPC health service for orchestrators that check over gRPC
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		logger.Fatal().Err(err).Str("grpc_port", cfg.GRPCPort).Msg("Failed to listen for gRPC")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go watchReadiness(ctx, healthServer, checks, logger)

	go func() {
		logger.Info().Str("grpc_port", cfg.GRPCPort).Msg("gRPC health server listening")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/v1/transcriptions", cfg.Port)).
			Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	stop()
	healthServer.Shutdown()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	grpcServer.GracefulStop()

	logger.Info().Msg("Server exited gracefully")
}

// newTranscriber builds the configured speech recognition backend
func newTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	maxFailures := cfg.CircuitBreakerMaxFailures
	resetTimeout := config.Seconds(cfg.CircuitBreakerResetTimeout)

	switch cfg.TranscriberBackend {
	case config.BackendWhisper:
		return stt.NewWhisperClient(stt.WhisperConfig{
			APIKey:                     cfg.WhisperAPIKey,
			BaseURL:                    cfg.WhisperBaseURL,
			Model:                      cfg.WhisperModel,
			CircuitBreakerMaxFailures:  maxFailures,
			CircuitBreakerResetTimeout: resetTimeout,
		}), nil
	case config.BackendFasterWhisper:
		return stt.NewFasterWhisperClient(stt.FasterWhisperConfig{
			URL:                        cfg.FasterWhisperURL,
			Model:                      cfg.FasterWhisperModel,
			Timeout:                    config.Seconds(cfg.FasterWhisperTimeout),
			CircuitBreakerMaxFailures:  maxFailures,
			CircuitBreakerResetTimeout: resetTimeout,
		}), nil
	case config.BackendDeepgram:
		return stt.NewDeepgramClient(stt.DeepgramConfig{
			APIKey:                     cfg.DeepgramAPIKey,
			Model:                      cfg.DeepgramModel,
			CircuitBreakerMaxFailures:  maxFailures,
			CircuitBreakerResetTimeout: resetTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transcriber backend %q", cfg.TranscriberBackend)
	}
}

// newParser builds the configured dependency parser for the text normalizer
func newParser(cfg *config.Config) textnorm.Parser {
	if cfg.ParserBackend == config.ParserNatasha {
		return textnorm.NewNatashaClient(textnorm.NatashaConfig{
			BaseURL:                    cfg.NatashaURL,
			Timeout:                    config.Seconds(cfg.NatashaTimeout),
			CircuitBreakerMaxFailures:  cfg.CircuitBreakerMaxFailures,
			CircuitBreakerResetTimeout: config.Seconds(cfg.CircuitBreakerResetTimeout),
		})
	}
	return textnorm.NewRulesParser()
}

// watchReadiness mirrors /ready into the gRPC health service
func watchReadiness(ctx context.Context, healthServer *health.Server, checks map[string]observability.HealthCheckFunc, logger zerolog.Logger) {
	update := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		_, ready := observability.CheckDependencies(checkCtx, checks)
		status := healthpb.HealthCheckResponse_SERVING
		if !ready {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn().Msg("Model backends not ready")
		}
		healthServer.SetServingStatus("", status)
		healthServer.SetServingStatus(grpcServiceName, status)
	}

	update()
	ticker := time.NewTicker(readinessPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

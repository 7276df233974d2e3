package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/orchestrator"
	"github.com/lexiqai/transcriber/internal/resilience"
	"github.com/lexiqai/transcriber/internal/textnorm"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CorrelationIDHeader carries the request correlation id in both directions
const CorrelationIDHeader = "X-Correlation-ID"

// Pipeline runs speaker-labeled transcription over an uploaded recording
type Pipeline interface {
	Run(ctx context.Context, content []byte, opts orchestrator.Options) (*orchestrator.Transcript, error)
}

// TextNormalizer removes words from transcribed text
type TextNormalizer interface {
	RemoveStopwords(ctx context.Context, language, text string, opts textnorm.StopwordOptions) (string, error)
	RemoveWords(ctx context.Context, language, text string, words []string) (string, error)
}

// Config holds HTTP layer settings
type Config struct {
	// MaxUploadBytes caps audio uploads and text request bodies
	MaxUploadBytes int64

	// RequestTimeout bounds a single transcription run (0 = no limit)
	RequestTimeout time.Duration

	// Retry wraps pipeline runs; nil or MaxAttempts <= 1 runs once
	Retry *resilience.RetryConfig

	// MetricsEnabled mounts the Prometheus handler at /metrics
	MetricsEnabled bool

	// ReadinessChecks are run by /ready
	ReadinessChecks map[string]observability.HealthCheckFunc
}

// Server exposes the pipeline and the text normalizer over HTTP
type Server struct {
	pipeline   Pipeline
	normalizer TextNormalizer
	cfg        Config
}

// NewServer creates the HTTP layer
func NewServer(pipeline Pipeline, normalizer TextNormalizer, cfg Config) *Server {
	if cfg.Retry == nil {
		cfg.Retry = &resilience.RetryConfig{MaxAttempts: 1}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 200 << 20
	}
	return &Server{
		pipeline:   pipeline,
		normalizer: normalizer,
		cfg:        cfg,
	}
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(correlation)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", CorrelationIDHeader},
		ExposedHeaders: []string{CorrelationIDHeader},
		MaxAge:         300,
	}))

	router.Get("/health", observability.HealthCheckHandler())
	router.Get("/ready", observability.ReadinessHandler(s.cfg.ReadinessChecks))
	if s.cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
	}

	router.Route("/v1", func(apiRouter chi.Router) {
		apiRouter.Post("/transcriptions", s.createTranscription)
		apiRouter.Get("/transcriptions/ws", s.streamTranscription)

		apiRouter.Route("/text", func(textRouter chi.Router) {
			textRouter.Post("/stopwords", s.removeStopwords)
			textRouter.Post("/words", s.removeWords)
			textRouter.Get("/lexicon", s.getLexicon)
		})
	})

	return router
}

// correlation attaches a request-scoped logger and echoes the correlation id
func correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationIDHeader)
		if id == "" {
			id = observability.NewCorrelationID()
		}
		logger := observability.WithCorrelationID(id)
		w.Header().Set(CorrelationIDHeader, id)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(observability.ContextWithLogger(r.Context(), logger)))

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// requestContext applies the transcription timeout to ctx
func (s *Server) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// transcribe runs the pipeline under the caller retry policy
func (s *Server) transcribe(ctx context.Context, content []byte, opts orchestrator.Options) (*orchestrator.Transcript, error) {
	var transcript *orchestrator.Transcript
	err := resilience.Retry(ctx, func() error {
		var err error
		transcript, err = s.pipeline.Run(ctx, content, opts)
		return err
	}, s.cfg.Retry, resilience.IsRetryableNetworkError)
	if err != nil {
		return nil, err
	}
	return transcript, nil
}

package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage names used as metric labels
const (
	StageNormalize  = "normalize"
	StageDiarize    = "diarize"
	StageExtract    = "extract"
	StageTranscribe = "transcribe"
)

var (
	// Pipeline metrics
	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transcriber_active_jobs",
		Help: "Number of transcription pipelines currently running",
	})

	totalJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriber_jobs_total",
		Help: "Total number of transcription pipelines processed",
	}, []string{"status"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcriber_job_duration_seconds",
		Help:    "Duration of a transcription pipeline in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	slotWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcriber_slot_wait_seconds",
		Help:    "Time spent waiting for a model slot",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
	})

	// Stage metrics
	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriber_stage_requests_total",
		Help: "Total number of pipeline stage executions",
	}, []string{"stage", "status"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transcriber_stage_latency_seconds",
		Help:    "Pipeline stage latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 15.0, 60.0},
	}, []string{"stage"})

	segmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcriber_segments_total",
		Help: "Total number of speaker segments transcribed",
	})

	// Text normalizer metrics
	textRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriber_text_requests_total",
		Help: "Total number of text normalization requests",
	}, []string{"operation", "status"})

	normalizerPasses = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcriber_normalizer_passes",
		Help:    "Number of filter passes per stopword removal",
		Buckets: []float64{1, 2, 3, 5, 10},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriber_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "transcriber_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcriber_audio_bytes_total",
		Help: "Total uploaded audio bytes processed",
	})

	audioSecondsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcriber_audio_seconds_total",
		Help: "Total seconds of normalized audio processed",
	})
)

// Metrics tracks metrics for a single pipeline run
type Metrics struct {
	jobID      string
	startTime  time.Time
	stageStart map[string]time.Time
	mu         sync.Mutex
}

// NewJobMetrics creates a new metrics tracker for a pipeline run
func NewJobMetrics(jobID string) *Metrics {
	return &Metrics{
		jobID:      jobID,
		startTime:  time.Now(),
		stageStart: make(map[string]time.Time),
	}
}

// RecordJobStart records the start of a pipeline run
func (m *Metrics) RecordJobStart() {
	activeJobs.Inc()
}

// RecordJobEnd records the end of a pipeline run
func (m *Metrics) RecordJobEnd(success bool) {
	activeJobs.Dec()
	jobDuration.Observe(time.Since(m.startTime).Seconds())
	totalJobs.WithLabelValues(statusLabel(success)).Inc()
}

// RecordSlotWait records how long the run waited for a model slot
func (m *Metrics) RecordSlotWait(d time.Duration) {
	slotWait.Observe(d.Seconds())
}

// RecordStageStart records the start of a pipeline stage
func (m *Metrics) RecordStageStart(stage string) {
	m.mu.Lock()
	m.stageStart[stage] = time.Now()
	m.mu.Unlock()
}

// RecordStageEnd records the end of a pipeline stage and returns its duration
func (m *Metrics) RecordStageEnd(stage string, success bool) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var elapsed time.Duration
	if start, ok := m.stageStart[stage]; ok {
		elapsed = time.Since(start)
		stageLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
		delete(m.stageStart, stage)
	}

	stageRequests.WithLabelValues(stage, statusLabel(success)).Inc()
	return elapsed
}

// RecordSegment records one transcribed speaker segment
func (m *Metrics) RecordSegment() {
	segmentsTotal.Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudio records the uploaded size and normalized duration of a run
func (m *Metrics) RecordAudio(bytes int, duration time.Duration) {
	audioBytesProcessed.Add(float64(bytes))
	audioSecondsProcessed.Add(duration.Seconds())
}

// RecordTextRequest records a text normalizer request
func RecordTextRequest(operation string, success bool) {
	textRequests.WithLabelValues(operation, statusLabel(success)).Inc()
}

// RecordNormalizerPasses records how many filter passes a removal took
func RecordNormalizerPasses(passes int) {
	normalizerPasses.Observe(float64(passes))
}

// RecordError records an error outside a pipeline run
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

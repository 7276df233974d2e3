package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexiqai/transcriber/internal/audio"
	"github.com/lexiqai/transcriber/internal/diarization"
	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/stt"
)

// Config holds pipeline settings
type Config struct {
	// Concurrency is the number of pipeline runs allowed to use the model
	// handles at once. Values below 1 mean 1.
	Concurrency int

	// SilenceThreshold is the RMS level under which input is treated as
	// silent and rejected before diarization. 0 disables the check.
	SilenceThreshold float64
}

// Orchestrator runs the full pipeline: normalize, diarize, then extract,
// normalize and transcribe every merged speaker interval in order
type Orchestrator struct {
	diarizer    *diarization.Diarizer
	transcriber stt.Transcriber
	slots       chan struct{}
	vad         *audio.VADConfig
}

// New takes ownership of the model handles; Close releases them
func New(diarizer *diarization.Diarizer, transcriber stt.Transcriber, cfg Config) *Orchestrator {
	slots := max(cfg.Concurrency, 1)

	vad := audio.DefaultVADConfig()
	vad.EnergyThreshold = cfg.SilenceThreshold

	return &Orchestrator{
		diarizer:    diarizer,
		transcriber: transcriber,
		slots:       make(chan struct{}, slots),
		vad:         vad,
	}
}

// Transcribe runs the pipeline and returns the rendered transcript
func (o *Orchestrator) Transcribe(ctx context.Context, content []byte, opts Options) (string, error) {
	transcript, err := o.Run(ctx, content, opts)
	if err != nil {
		return "", err
	}
	return transcript.Render(), nil
}

// Run executes the pipeline. Any failure aborts the run and no partial
// transcript is returned.
func (o *Orchestrator) Run(ctx context.Context, content []byte, opts Options) (*Transcript, error) {
	jobID := observability.NewCorrelationID()
	logger := observability.LoggerFromContext(ctx).With().Str("job_id", jobID).Logger()
	metrics := observability.NewJobMetrics(jobID)

	waitStart := time.Now()
	if err := o.acquire(ctx); err != nil {
		return nil, err
	}
	defer o.release()
	metrics.RecordSlotWait(time.Since(waitStart))

	metrics.RecordJobStart()
	transcript, err := o.run(ctx, content, opts, metrics)
	metrics.RecordJobEnd(err == nil)
	if err != nil {
		logger.Error().Err(err).Msg("Transcription pipeline failed")
		return nil, err
	}

	transcript.ID = jobID
	logger.Info().
		Int("segments", len(transcript.Segments)).
		Str("language", transcript.Language).
		Msg("Transcription pipeline completed")
	return transcript, nil
}

func (o *Orchestrator) run(ctx context.Context, content []byte, opts Options, metrics *observability.Metrics) (*Transcript, error) {
	logger := observability.LoggerFromContext(ctx)

	metrics.RecordStageStart(observability.StageNormalize)
	buf, err := audio.Normalize(content)
	elapsed := metrics.RecordStageEnd(observability.StageNormalize, err == nil)
	if err != nil {
		metrics.RecordError("decode", observability.StageNormalize)
		return nil, err
	}
	metrics.RecordAudio(len(content), buf.Duration())
	logger.Debug().Dur("elapsed", elapsed).Dur("audio_duration", buf.Duration()).Msg("Audio normalized")
	notify(opts.Progress, ProgressEvent{Stage: StageNormalized})

	if !audio.HasSpeech(buf, o.vad) {
		metrics.RecordError("no_speech", observability.StageNormalize)
		return nil, fmt.Errorf("%w: %w", diarization.ErrDiarization, diarization.ErrNoSpeech)
	}

	metrics.RecordStageStart(observability.StageDiarize)
	intervals, err := o.diarizer.Diarize(ctx, buf, opts.MaxSpeakers)
	elapsed = metrics.RecordStageEnd(observability.StageDiarize, err == nil)
	if err != nil {
		metrics.RecordError("diarization", o.diarizer.Name())
		return nil, err
	}
	logger.Debug().Dur("elapsed", elapsed).Int("intervals", len(intervals)).Msg("Audio diarized")
	notify(opts.Progress, ProgressEvent{Stage: StageDiarized, Segments: len(intervals)})

	segments := make([]Segment, 0, len(intervals))
	for i, iv := range intervals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		seg, err := o.transcribeSegment(ctx, content, iv, opts, metrics)
		if err != nil {
			metrics.RecordError("transcription", o.transcriber.Name())
			return nil, &SegmentError{Speaker: iv.Speaker, Index: i, Start: iv.Start, End: iv.End, Err: err}
		}

		segments = append(segments, seg)
		metrics.RecordSegment()
		notify(opts.Progress, ProgressEvent{Stage: StageSegment, Segment: i + 1, Segments: len(intervals)})
	}

	return &Transcript{
		Language: transcriptLanguage(opts.Language, segments),
		Segments: segments,
	}, nil
}

func (o *Orchestrator) transcribeSegment(ctx context.Context, content []byte, iv diarization.Interval, opts Options, metrics *observability.Metrics) (Segment, error) {
	metrics.RecordStageStart(observability.StageExtract)
	wavData, err := audio.Extract(content, iv.Start, iv.End)
	var segBuf *audio.Buffer
	if err == nil {
		segBuf, err = audio.Normalize(wavData)
	}
	metrics.RecordStageEnd(observability.StageExtract, err == nil)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: extract: %w", stt.ErrTranscription, err)
	}

	metrics.RecordStageStart(observability.StageTranscribe)
	result, err := o.transcriber.Transcribe(ctx, segBuf, stt.Options{
		Language: opts.Language,
		Prompt:   opts.Theme,
	})
	metrics.RecordStageEnd(observability.StageTranscribe, err == nil)
	if err != nil {
		if !errors.Is(err, stt.ErrTranscription) {
			err = fmt.Errorf("%w: %w", stt.ErrTranscription, err)
		}
		return Segment{}, err
	}

	return Segment{
		Speaker:  iv.Speaker,
		Text:     result.Text,
		Language: result.Language,
		Start:    iv.Start,
		End:      iv.End,
	}, nil
}

// transcriptLanguage returns the hint when set, otherwise the most frequent
// detected segment language. The first language seen wins ties.
func transcriptLanguage(hint string, segments []Segment) string {
	if hint != "" {
		return hint
	}

	counts := make(map[string]int)
	best, bestCount := stt.UnknownLanguage, 0
	for _, seg := range segments {
		if seg.Language == "" || seg.Language == stt.UnknownLanguage {
			continue
		}
		counts[seg.Language]++
		if c := counts[seg.Language]; c > bestCount {
			best, bestCount = seg.Language, c
		}
	}
	return best
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	select {
	case o.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release() {
	<-o.slots
}

func notify(fn ProgressFunc, ev ProgressEvent) {
	if fn != nil {
		fn(ev)
	}
}

// DiarizerName returns the diarization backend name
func (o *Orchestrator) DiarizerName() string {
	return o.diarizer.Name()
}

// TranscriberName returns the speech recognition backend name
func (o *Orchestrator) TranscriberName() string {
	return o.transcriber.Name()
}

// DiarizerAvailable reports whether the diarization backend is reachable
func (o *Orchestrator) DiarizerAvailable(ctx context.Context) bool {
	return o.diarizer.IsAvailable(ctx)
}

// TranscriberAvailable reports whether the speech recognition backend is reachable
func (o *Orchestrator) TranscriberAvailable(ctx context.Context) bool {
	return o.transcriber.IsAvailable(ctx)
}

// Close releases both model handles
func (o *Orchestrator) Close() error {
	return errors.Join(o.diarizer.Close(), o.transcriber.Close())
}

package orchestrator

import (
	"fmt"
	"strings"
)

// Progress stages reported while a pipeline runs
const (
	StageNormalized = "normalized"
	StageDiarized   = "diarized"
	StageSegment    = "segment"
)

// ProgressEvent reports pipeline progress. Segment and Segments are set for
// the diarized and segment stages; no recognized text is ever included.
type ProgressEvent struct {
	Stage    string `json:"stage"`
	Segment  int    `json:"segment,omitempty"`
	Segments int    `json:"segments,omitempty"`
}

// ProgressFunc receives progress events synchronously from the pipeline
type ProgressFunc func(ProgressEvent)

// Options controls a single pipeline run
type Options struct {
	// Language is an optional hint forwarded to every segment transcription
	Language string

	// MaxSpeakers bounds the number of detected speakers (0 = auto-detect)
	MaxSpeakers int

	// Theme describes the recording and biases recognition
	Theme string

	// Progress is called after each stage when set
	Progress ProgressFunc
}

// Segment is the transcription of one merged speaker interval
type Segment struct {
	Speaker  string  `json:"speaker"`
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
}

// Transcript is the result of a pipeline run
type Transcript struct {
	ID       string    `json:"id"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Render formats one "[speaker] text" line per segment, separated by a
// blank line
func (t *Transcript) Render() string {
	lines := make([]string, len(t.Segments))
	for i, seg := range t.Segments {
		lines[i] = fmt.Sprintf("[%s] %s", seg.Speaker, seg.Text)
	}
	return strings.Join(lines, "\n\n")
}

// SegmentError reports which speaker segment aborted the pipeline
type SegmentError struct {
	Speaker string
	Index   int
	Start   float64
	End     float64
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d (speaker %s, %.2fs-%.2fs): %v", e.Index, e.Speaker, e.Start, e.End, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

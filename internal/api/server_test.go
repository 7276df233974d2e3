package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lexiqai/transcriber/internal/audio"
	"github.com/lexiqai/transcriber/internal/diarization"
	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/orchestrator"
	"github.com/lexiqai/transcriber/internal/resilience"
	"github.com/lexiqai/transcriber/internal/stt"
	"github.com/lexiqai/transcriber/internal/textnorm"
)

type fakePipeline struct {
	mu    sync.Mutex
	calls []orchestrator.Options
	run   func(call int, opts orchestrator.Options) (*orchestrator.Transcript, error)

	// runCtx replaces run when the test needs the request context
	runCtx func(ctx context.Context) (*orchestrator.Transcript, error)
}

func (p *fakePipeline) Run(ctx context.Context, content []byte, opts orchestrator.Options) (*orchestrator.Transcript, error) {
	p.mu.Lock()
	p.calls = append(p.calls, opts)
	call := len(p.calls)
	p.mu.Unlock()
	if p.runCtx != nil {
		return p.runCtx(ctx)
	}
	return p.run(call, opts)
}

func (p *fakePipeline) options(i int) orchestrator.Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[i]
}

func (p *fakePipeline) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func sampleTranscript() *orchestrator.Transcript {
	return &orchestrator.Transcript{
		ID:       "job-1",
		Language: "ru",
		Segments: []orchestrator.Segment{
			{Speaker: "SPEAKER_00", Text: "Привет.", Language: "ru", Start: 0, End: 1.5},
			{Speaker: "SPEAKER_01", Text: "Здравствуйте.", Language: "ru", Start: 1.5, End: 3},
		},
	}
}

func succeed(call int, opts orchestrator.Options) (*orchestrator.Transcript, error) {
	return sampleTranscript(), nil
}

func newTestServer(pipeline Pipeline, cfg Config) http.Handler {
	return NewServer(pipeline, textnorm.NewNormalizer(textnorm.NewRulesParser(), 0), cfg).Routes()
}

func multipartBody(t *testing.T, audioData []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if audioData != nil {
		part, err := writer.CreateFormFile("audio", "call.wav")
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		part.Write(audioData)
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreateTranscription(t *testing.T) {
	pipeline := &fakePipeline{run: succeed}
	handler := newTestServer(pipeline, Config{})

	body, contentType := multipartBody(t, []byte("RIFF"), map[string]string{
		"language":     "ru",
		"max_speakers": "2",
		"theme":        " планёрка ",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody[TranscriptionResponse](t, rec)
	if resp.Transcript != "[SPEAKER_00] Привет.\n\n[SPEAKER_01] Здравствуйте." {
		t.Errorf("Unexpected transcript %q", resp.Transcript)
	}
	if resp.ID != "job-1" || resp.Language != "ru" || len(resp.Segments) != 2 {
		t.Errorf("Unexpected response %+v", resp)
	}

	opts := pipeline.options(0)
	if opts.Language != "ru" || opts.MaxSpeakers != 2 || opts.Theme != "планёрка" {
		t.Errorf("Unexpected pipeline options %+v", opts)
	}
	if rec.Header().Get(CorrelationIDHeader) == "" {
		t.Error("Expected correlation id header")
	}
}

func TestCreateTranscription_InvalidRequests(t *testing.T) {
	tests := []struct {
		name   string
		audio  []byte
		fields map[string]string
		status int
	}{
		{"missing audio", nil, nil, http.StatusBadRequest},
		{"non-numeric max_speakers", []byte("RIFF"), map[string]string{"max_speakers": "two"}, http.StatusBadRequest},
		{"negative max_speakers", []byte("RIFF"), map[string]string{"max_speakers": "-1"}, http.StatusBadRequest},
		{"too many speakers", []byte("RIFF"), map[string]string{"max_speakers": "100"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := &fakePipeline{run: succeed}
			handler := newTestServer(pipeline, Config{})

			body, contentType := multipartBody(t, tt.audio, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if resp := decodeBody[ErrorResponse](t, rec); resp.Code != CodeInvalidRequest {
				t.Errorf("Expected code %s, got %s", CodeInvalidRequest, resp.Code)
			}
			if pipeline.callCount() != 0 {
				t.Error("Expected pipeline not to run")
			}
		})
	}
}

func TestCreateTranscription_UploadTooLarge(t *testing.T) {
	pipeline := &fakePipeline{run: succeed}
	handler := newTestServer(pipeline, Config{MaxUploadBytes: 64})

	body, contentType := multipartBody(t, bytes.Repeat([]byte{1}, 1024), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateTranscription_PipelineErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		speaker string
	}{
		{"decode", fmt.Errorf("%w: unknown format", audio.ErrDecode), http.StatusUnprocessableEntity, CodeDecodeError, ""},
		{"no speech", fmt.Errorf("%w: %w", diarization.ErrDiarization, diarization.ErrNoSpeech), http.StatusUnprocessableEntity, CodeNoSpeech, ""},
		{"diarization", fmt.Errorf("%w: pyannote: boom", diarization.ErrDiarization), http.StatusBadGateway, CodeDiarizationError, ""},
		{
			"transcription",
			&orchestrator.SegmentError{Speaker: "SPEAKER_01", Index: 1, Err: fmt.Errorf("%w: boom", stt.ErrTranscription)},
			http.StatusBadGateway, CodeTranscriptionError, "SPEAKER_01",
		},
		{
			"circuit open",
			fmt.Errorf("%w: pyannote: %w", diarization.ErrDiarization, fmt.Errorf("pyannote: %w", resilience.ErrCircuitOpen)),
			http.StatusServiceUnavailable, CodeBackendUnavailable, "",
		},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, CodeInternalError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := &fakePipeline{run: func(int, orchestrator.Options) (*orchestrator.Transcript, error) {
				return nil, tt.err
			}}
			handler := newTestServer(pipeline, Config{})

			body, contentType := multipartBody(t, []byte("RIFF"), nil)
			req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, rec.Code)
			}
			resp := decodeBody[ErrorResponse](t, rec)
			if resp.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, resp.Code)
			}
			if resp.Speaker != tt.speaker {
				t.Errorf("Expected speaker %q, got %q", tt.speaker, resp.Speaker)
			}
		})
	}
}

func TestCreateTranscription_Retry(t *testing.T) {
	unavailable := fmt.Errorf("%w: pyannote: %w", diarization.ErrDiarization, resilience.ErrCircuitOpen)
	flaky := func(call int, opts orchestrator.Options) (*orchestrator.Transcript, error) {
		if call == 1 {
			return nil, unavailable
		}
		return sampleTranscript(), nil
	}

	send := func(handler http.Handler) int {
		body, contentType := multipartBody(t, []byte("RIFF"), nil)
		req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Single attempt by default
	once := &fakePipeline{run: flaky}
	if code := send(newTestServer(once, Config{})); code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without retries, got %d", code)
	}
	if once.callCount() != 1 {
		t.Errorf("Expected 1 call, got %d", once.callCount())
	}

	retried := &fakePipeline{run: flaky}
	cfg := Config{Retry: &resilience.RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 2,
	}}
	if code := send(newTestServer(retried, cfg)); code != http.StatusOK {
		t.Errorf("Expected 200 after retry, got %d", code)
	}
	if retried.callCount() != 2 {
		t.Errorf("Expected 2 calls, got %d", retried.callCount())
	}

	// Bad input is never retried
	decodeFail := &fakePipeline{run: func(int, orchestrator.Options) (*orchestrator.Transcript, error) {
		return nil, audio.ErrDecode
	}}
	send(newTestServer(decodeFail, cfg))
	if decodeFail.callCount() != 1 {
		t.Errorf("Expected decode errors not to be retried, got %d calls", decodeFail.callCount())
	}
}

func postJSON(handler http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRemoveStopwordsHandler(t *testing.T) {
	handler := newTestServer(&fakePipeline{run: succeed}, Config{})

	rec := postJSON(handler, "/v1/text/stopwords", `{"text":"Ну, короче, я пошёл домой.","language":"ru"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeBody[TextResponse](t, rec); resp.Text != "Я пошёл домой." {
		t.Errorf("Expected 'Я пошёл домой.', got %q", resp.Text)
	}

	rec = postJSON(handler, "/v1/text/stopwords", `{"text":"Бля, я опоздал.","language":"ru","remove_swear_words":true}`)
	if resp := decodeBody[TextResponse](t, rec); resp.Text != "Я опоздал." {
		t.Errorf("Expected 'Я опоздал.', got %q", resp.Text)
	}
}

func TestGetLexiconHandler(t *testing.T) {
	handler := newTestServer(&fakePipeline{run: succeed}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/text/lexicon", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	resp := decodeBody[LexiconResponse](t, rec)
	if len(resp.Fillers) != len(textnorm.FillerWords()) {
		t.Errorf("Expected %d fillers, got %d", len(textnorm.FillerWords()), len(resp.Fillers))
	}
	if len(resp.SwearWords) != len(textnorm.SwearWords()) {
		t.Errorf("Expected %d swear words, got %d", len(textnorm.SwearWords()), len(resp.SwearWords))
	}
}

func TestRemoveWordsHandler(t *testing.T) {
	handler := newTestServer(&fakePipeline{run: succeed}, Config{})

	rec := postJSON(handler, "/v1/text/words", `{"text":"Мама мыла раму. Мама устала.","language":"ru","words":["мама"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeBody[TextResponse](t, rec); resp.Text != "Мыла раму. Устала." {
		t.Errorf("Expected 'Мыла раму. Устала.', got %q", resp.Text)
	}
}

func TestTextHandlers_Errors(t *testing.T) {
	handler := newTestServer(&fakePipeline{run: succeed}, Config{})

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed json", "/v1/text/stopwords", `{"text":`, http.StatusBadRequest, CodeInvalidRequest},
		{"missing language", "/v1/text/stopwords", `{"text":"ну да"}`, http.StatusBadRequest, CodeInvalidRequest},
		{"unsupported language", "/v1/text/stopwords", `{"text":"well","language":"en"}`, http.StatusUnprocessableEntity, CodeUnsupportedLanguage},
		{"no words", "/v1/text/words", `{"text":"ну да","language":"ru","words":[]}`, http.StatusBadRequest, CodeInvalidRequest},
		{"blank word", "/v1/text/words", `{"text":"ну да","language":"ru","words":[""]}`, http.StatusBadRequest, CodeInvalidRequest},
		{"words unsupported language", "/v1/text/words", `{"text":"да","language":"de","words":["да"]}`, http.StatusUnprocessableEntity, CodeUnsupportedLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(handler, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if resp := decodeBody[ErrorResponse](t, rec); resp.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, resp.Code)
			}
		})
	}
}

func TestValidationErrorFields(t *testing.T) {
	handler := newTestServer(&fakePipeline{run: succeed}, Config{})

	rec := postJSON(handler, "/v1/text/words", `{"text":"да"}`)
	resp := decodeBody[ErrorResponse](t, rec)
	fields := make(map[string]bool)
	for _, f := range resp.Fields {
		fields[f.Field] = true
	}
	if !fields["language"] || !fields["words"] {
		t.Errorf("Expected language and words field errors, got %+v", resp.Fields)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	checks := map[string]observability.HealthCheckFunc{
		"pyannote": func(ctx context.Context) (bool, error) { return true, nil },
		"whisper":  func(ctx context.Context) (bool, error) { return false, errors.New("down") },
	}
	handler := newTestServer(&fakePipeline{run: succeed}, Config{ReadinessChecks: checks, MetricsEnabled: true})

	for path, want := range map[string]int{
		"/health":  http.StatusOK,
		"/ready":   http.StatusServiceUnavailable,
		"/metrics": http.StatusOK,
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("%s: expected %d, got %d", path, want, rec.Code)
		}
	}

	disabled := newTestServer(&fakePipeline{run: succeed}, Config{})
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected /metrics to be absent when disabled, got %d", rec.Code)
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	handler := newTestServer(&fakePipeline{run: succeed}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(CorrelationIDHeader, "abc-123")
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(CorrelationIDHeader); got != "abc-123" {
		t.Errorf("Expected correlation id 'abc-123', got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected CORS header '*', got %q", got)
	}
}

func dialWS(t *testing.T, handler http.Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/transcriptions/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrames(t *testing.T, conn *websocket.Conn) []Frame {
	t.Helper()
	var frames []Frame
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("Unexpected read error: %v", err)
			}
			return frames
		}
		frames = append(frames, frame)
	}
}

func TestStreamTranscription(t *testing.T) {
	pipeline := &fakePipeline{run: func(call int, opts orchestrator.Options) (*orchestrator.Transcript, error) {
		opts.Progress(orchestrator.ProgressEvent{Stage: orchestrator.StageNormalized})
		opts.Progress(orchestrator.ProgressEvent{Stage: orchestrator.StageDiarized, Segments: 2})
		opts.Progress(orchestrator.ProgressEvent{Stage: orchestrator.StageSegment, Segment: 1, Segments: 2})
		opts.Progress(orchestrator.ProgressEvent{Stage: orchestrator.StageSegment, Segment: 2, Segments: 2})
		return sampleTranscript(), nil
	}}
	conn := dialWS(t, newTestServer(pipeline, Config{}))

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"language":"ru","max_speakers":2,"theme":"звонок"}`)); err != nil {
		t.Fatalf("Write options failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("RIFF")); err != nil {
		t.Fatalf("Write audio failed: %v", err)
	}

	frames := readFrames(t, conn)
	if len(frames) != 5 {
		t.Fatalf("Expected 5 frames, got %+v", frames)
	}
	for _, f := range frames[:4] {
		if f.Type != FrameStatus || f.Result != nil {
			t.Errorf("Expected status frame without text, got %+v", f)
		}
	}
	if frames[3].Segment != 2 || frames[3].Segments != 2 {
		t.Errorf("Unexpected last status frame %+v", frames[3])
	}

	result := frames[4]
	if result.Type != FrameResult || result.Result == nil {
		t.Fatalf("Expected result frame, got %+v", result)
	}
	if result.Result.Transcript != "[SPEAKER_00] Привет.\n\n[SPEAKER_01] Здравствуйте." {
		t.Errorf("Unexpected transcript %q", result.Result.Transcript)
	}

	opts := pipeline.options(0)
	if opts.Language != "ru" || opts.MaxSpeakers != 2 || opts.Theme != "звонок" {
		t.Errorf("Unexpected pipeline options %+v", opts)
	}
}

func TestStreamTranscription_Errors(t *testing.T) {
	t.Run("pipeline failure", func(t *testing.T) {
		pipeline := &fakePipeline{run: func(int, orchestrator.Options) (*orchestrator.Transcript, error) {
			return nil, fmt.Errorf("%w: not audio", audio.ErrDecode)
		}}
		conn := dialWS(t, newTestServer(pipeline, Config{}))
		conn.WriteMessage(websocket.TextMessage, []byte(`{}`))
		conn.WriteMessage(websocket.BinaryMessage, []byte("junk"))

		frames := readFrames(t, conn)
		if len(frames) != 1 || frames[0].Type != FrameError {
			t.Fatalf("Expected a single error frame, got %+v", frames)
		}
		if frames[0].Status != http.StatusUnprocessableEntity || frames[0].Error.Code != CodeDecodeError {
			t.Errorf("Unexpected error frame %+v", frames[0])
		}
	})

	t.Run("audio before options", func(t *testing.T) {
		pipeline := &fakePipeline{run: succeed}
		conn := dialWS(t, newTestServer(pipeline, Config{}))
		conn.WriteMessage(websocket.BinaryMessage, []byte("RIFF"))

		frames := readFrames(t, conn)
		if len(frames) != 1 || frames[0].Error == nil || frames[0].Error.Code != CodeInvalidRequest {
			t.Fatalf("Expected invalid request frame, got %+v", frames)
		}
		if pipeline.callCount() != 0 {
			t.Error("Expected pipeline not to run")
		}
	})

	t.Run("invalid options", func(t *testing.T) {
		pipeline := &fakePipeline{run: succeed}
		conn := dialWS(t, newTestServer(pipeline, Config{}))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"max_speakers":-3}`))

		frames := readFrames(t, conn)
		if len(frames) != 1 || frames[0].Status != http.StatusBadRequest {
			t.Fatalf("Expected 400 error frame, got %+v", frames)
		}
	})
}

func TestStreamTranscription_DisconnectCancelsRun(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan error, 1)
	pipeline := &fakePipeline{runCtx: func(ctx context.Context) (*orchestrator.Transcript, error) {
		close(started)
		select {
		case <-ctx.Done():
			cancelled <- ctx.Err()
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return sampleTranscript(), nil
		}
	}}
	conn := dialWS(t, newTestServer(pipeline, Config{}))

	conn.WriteMessage(websocket.TextMessage, []byte(`{"language":"ru"}`))
	conn.WriteMessage(websocket.BinaryMessage, []byte("RIFF"))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the pipeline to start")
	}
	conn.Close()

	select {
	case err := <-cancelled:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the run to be cancelled after the client disconnected")
	}
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/orchestrator"
)

// multipartMemory is the part of a multipart upload kept in memory; the rest
// spills to temporary files
const multipartMemory = 32 << 20

// WebSocket frame types sent by the server
const (
	FrameStatus = "status"
	FrameResult = "result"
	FrameError  = "error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// TranscriptionRequest holds the options of a transcription upload
type TranscriptionRequest struct {
	Language    string `json:"language" validate:"max=35"`
	MaxSpeakers int    `json:"max_speakers" validate:"gte=0,lte=20"`
	Theme       string `json:"theme" validate:"max=2000"`
}

func (req TranscriptionRequest) options(progress orchestrator.ProgressFunc) orchestrator.Options {
	return orchestrator.Options{
		Language:    strings.TrimSpace(req.Language),
		MaxSpeakers: req.MaxSpeakers,
		Theme:       strings.TrimSpace(req.Theme),
		Progress:    progress,
	}
}

// TranscriptionResponse is the result of a transcription request
type TranscriptionResponse struct {
	ID         string                 `json:"id"`
	Language   string                 `json:"language"`
	Transcript string                 `json:"transcript"`
	Segments   []orchestrator.Segment `json:"segments"`
}

func newTranscriptionResponse(t *orchestrator.Transcript) *TranscriptionResponse {
	return &TranscriptionResponse{
		ID:         t.ID,
		Language:   t.Language,
		Transcript: t.Render(),
		Segments:   t.Segments,
	}
}

// Frame is a server message on the transcription WebSocket
type Frame struct {
	Type     string                 `json:"type"`
	Stage    string                 `json:"stage,omitempty"`
	Segment  int                    `json:"segment,omitempty"`
	Segments int                    `json:"segments,omitempty"`
	Result   *TranscriptionResponse `json:"result,omitempty"`
	Error    *ErrorResponse         `json:"error,omitempty"`
	Status   int                    `json:"status,omitempty"`
}

// createTranscription handles POST /v1/transcriptions
func (s *Server) createTranscription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, r, &http.MaxBytesError{Limit: s.cfg.MaxUploadBytes})
			return
		}
		writeError(w, r, invalidRequest("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, r, invalidRequest("audio file is required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, invalidRequest("read audio: %v", err))
		return
	}

	req := TranscriptionRequest{
		Language: r.FormValue("language"),
		Theme:    r.FormValue("theme"),
	}
	if v := strings.TrimSpace(r.FormValue("max_speakers")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, invalidRequest("max_speakers must be an integer"))
			return
		}
		req.MaxSpeakers = n
	}
	if err := validateRequest(req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	transcript, err := s.transcribe(ctx, content, req.options(nil))
	if err != nil {
		writeError(w, r, err)
		return
	}

	_ = writeJSON(w, http.StatusOK, newTranscriptionResponse(transcript))
}

// streamTranscription handles GET /v1/transcriptions/ws. The client sends a
// JSON options frame followed by one binary audio frame; the server reports
// progress and closes after a result or error frame.
func (s *Server) streamTranscription(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxUploadBytes)

	session := &wsSession{conn: conn}
	defer session.close()

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		logger.Warn().Err(err).Msg("WebSocket read error")
		return
	}
	if msgType != websocket.TextMessage {
		session.sendError(invalidRequest("first frame must be a JSON options message"))
		return
	}

	var req TranscriptionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		session.sendError(invalidRequest("invalid options: %v", err))
		return
	}
	if err := validateRequest(req); err != nil {
		session.sendError(err)
		return
	}

	msgType, content, err := conn.ReadMessage()
	if err != nil {
		logger.Warn().Err(err).Msg("WebSocket read error")
		return
	}
	if msgType != websocket.BinaryMessage {
		session.sendError(invalidRequest("second frame must be binary audio"))
		return
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	// The hijacked connection never cancels r.Context(), so a disconnect is
	// only seen by reading. Later client messages are discarded.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn().Err(err).Msg("WebSocket closed during transcription")
				}
				cancel()
				return
			}
		}
	}()

	progress := func(ev orchestrator.ProgressEvent) {
		session.send(Frame{Type: FrameStatus, Stage: ev.Stage, Segment: ev.Segment, Segments: ev.Segments})
	}

	transcript, err := s.transcribe(ctx, content, req.options(progress))
	if err != nil {
		logger.Warn().Err(err).Msg("WebSocket transcription failed")
		session.sendError(err)
		return
	}
	session.send(Frame{Type: FrameResult, Result: newTranscriptionResponse(transcript)})
}

// wsSession writes frames for one connection. Progress callbacks run
// synchronously inside the pipeline, so every write stays on the handler
// goroutine.
type wsSession struct {
	conn   *websocket.Conn
	failed bool
}

func (s *wsSession) send(frame Frame) {
	if s.failed {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteJSON(frame); err != nil {
		s.failed = true
	}
}

func (s *wsSession) sendError(err error) {
	status, resp := newErrorResponse(err)
	s.send(Frame{Type: FrameError, Status: status, Error: &resp})
}

func (s *wsSession) close() {
	if s.failed {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lexiqai/transcriber/internal/audio"
	"github.com/lexiqai/transcriber/internal/diarization"
	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/orchestrator"
	"github.com/lexiqai/transcriber/internal/resilience"
	"github.com/lexiqai/transcriber/internal/stt"
	"github.com/lexiqai/transcriber/internal/textnorm"
)

// Error codes returned to clients
const (
	CodeInvalidRequest      = "invalid_request"
	CodePayloadTooLarge     = "payload_too_large"
	CodeDecodeError         = "decode_error"
	CodeUnsupportedLanguage = "unsupported_language"
	CodeNoSpeech            = "no_speech"
	CodeDiarizationError    = "diarization_error"
	CodeTranscriptionError  = "transcription_error"
	CodeBackendUnavailable  = "backend_unavailable"
	CodeTimeout             = "timeout"
	CodeInternalError       = "internal_error"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Speaker string       `json:"speaker,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// classifyError maps a pipeline or normalizer error to a status and code.
// More specific kinds are checked first: an open breaker and missing speech
// both arrive wrapped in a diarization error.
func classifyError(err error) (int, string) {
	var validationErr *ValidationError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case errors.Is(err, audio.ErrDecode):
		return http.StatusUnprocessableEntity, CodeDecodeError
	case errors.Is(err, textnorm.ErrUnsupportedLanguage):
		return http.StatusUnprocessableEntity, CodeUnsupportedLanguage
	case errors.Is(err, diarization.ErrNoSpeech):
		return http.StatusUnprocessableEntity, CodeNoSpeech
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, CodeBackendUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, diarization.ErrDiarization):
		return http.StatusBadGateway, CodeDiarizationError
	case errors.Is(err, stt.ErrTranscription):
		return http.StatusBadGateway, CodeTranscriptionError
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

func newErrorResponse(err error) (int, ErrorResponse) {
	status, code := classifyError(err)
	resp := ErrorResponse{Code: code, Message: err.Error()}

	var segErr *orchestrator.SegmentError
	if errors.As(err, &segErr) {
		resp.Speaker = segErr.Speaker
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		resp.Fields = validationErr.Fields
	}
	if status == http.StatusInternalServerError {
		resp.Message = "internal error"
	}
	return status, resp
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := newErrorResponse(err)

	logger := observability.LoggerFromContext(r.Context())
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Int("status", status).Str("code", resp.Code).Msg("Request failed")

	_ = writeJSON(w, status, resp)
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/textnorm"
)

// Text operation names used in metrics
const (
	opStopwords = "stopwords"
	opWords     = "words"
)

// StopwordsRequest is the body of POST /v1/text/stopwords
type StopwordsRequest struct {
	Text             string `json:"text"`
	Language         string `json:"language" validate:"required"`
	RemoveSwearWords bool   `json:"remove_swear_words"`
	GoFewTimes       bool   `json:"go_few_times"`
}

// WordsRequest is the body of POST /v1/text/words
type WordsRequest struct {
	Text     string   `json:"text"`
	Language string   `json:"language" validate:"required"`
	Words    []string `json:"words" validate:"required,min=1,dive,required"`
}

// TextResponse carries the normalized text
type TextResponse struct {
	Text string `json:"text"`
}

// LexiconResponse lists the words RemoveStopwords drops
type LexiconResponse struct {
	Fillers    []string `json:"fillers"`
	SwearWords []string `json:"swear_words"`
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalidRequest("invalid JSON body: %v", err)
	}
	return validateRequest(v)
}

// removeStopwords handles POST /v1/text/stopwords
func (s *Server) removeStopwords(w http.ResponseWriter, r *http.Request) {
	var req StopwordsRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		observability.RecordTextRequest(opStopwords, false)
		writeError(w, r, err)
		return
	}

	text, err := s.normalizer.RemoveStopwords(r.Context(), req.Language, req.Text, textnorm.StopwordOptions{
		RemoveSwearWords: req.RemoveSwearWords,
		GoFewTimes:       req.GoFewTimes,
	})
	observability.RecordTextRequest(opStopwords, err == nil)
	if err != nil {
		writeError(w, r, err)
		return
	}

	_ = writeJSON(w, http.StatusOK, TextResponse{Text: text})
}

// removeWords handles POST /v1/text/words
func (s *Server) removeWords(w http.ResponseWriter, r *http.Request) {
	var req WordsRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		observability.RecordTextRequest(opWords, false)
		writeError(w, r, err)
		return
	}

	text, err := s.normalizer.RemoveWords(r.Context(), req.Language, req.Text, req.Words)
	observability.RecordTextRequest(opWords, err == nil)
	if err != nil {
		writeError(w, r, err)
		return
	}

	_ = writeJSON(w, http.StatusOK, TextResponse{Text: text})
}

// getLexicon handles GET /v1/text/lexicon
func (s *Server) getLexicon(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, LexiconResponse{
		Fillers:    textnorm.FillerWords(),
		SwearWords: textnorm.SwearWords(),
	})
}

package textnorm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/resilience"
)

const (
	// NatashaParserName is the name of the natasha sidecar parser
	NatashaParserName = "natasha"

	defaultNatashaURL     = "http://localhost:8389"
	defaultNatashaTimeout = 30 * time.Second
)

// NatashaConfig holds configuration for the natasha sidecar client
type NatashaConfig struct {
	BaseURL string
	Timeout time.Duration

	CircuitBreakerMaxFailures  int
	CircuitBreakerResetTimeout time.Duration
}

// NatashaClient parses Russian text through an HTTP sidecar running the
// natasha segmenter, morphology tagger and syntax parser
type NatashaClient struct {
	cfg            NatashaConfig
	client         *http.Client
	circuitBreaker *resilience.CircuitBreaker
}

// NewNatashaClient creates a new natasha sidecar client
func NewNatashaClient(cfg NatashaConfig) *NatashaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultNatashaURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultNatashaTimeout
	}
	if cfg.CircuitBreakerResetTimeout == 0 {
		cfg.CircuitBreakerResetTimeout = 30 * time.Second
	}

	return &NatashaClient{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: resilience.NewCircuitBreaker(NatashaParserName, cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout),
	}
}

// Name returns the parser name
func (c *NatashaClient) Name() string { return NatashaParserName }

// IsAvailable checks if the natasha sidecar is reachable
func (c *NatashaClient) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Parse sends one paragraph to the sidecar and returns its dependency trees
func (c *NatashaClient) Parse(ctx context.Context, paragraph string) (*Document, error) {
	var result natashaResponse
	err := c.circuitBreaker.Call(func() error {
		return c.parse(ctx, paragraph, &result)
	})
	observability.UpdateCircuitBreakerState(NatashaParserName, int(c.circuitBreaker.GetState()))
	if err != nil {
		return nil, err
	}

	doc := &Document{Sentences: make([]*Sentence, len(result.Sentences))}
	for i, s := range result.Sentences {
		doc.Sentences[i] = NewSentence(s.Tokens)
	}
	return doc, nil
}

func (c *NatashaClient) parse(ctx context.Context, paragraph string, out *natashaResponse) error {
	body, err := json.Marshal(natashaRequest{Text: paragraph})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/parse", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("natasha request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return resilience.StatusError("natasha", resp.StatusCode, respBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode natasha response: %w", err)
	}
	return nil
}

// Close releases idle sidecar connections
func (c *NatashaClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// --- internal natasha API types ---

type natashaRequest struct {
	Text string `json:"text"`
}

type natashaResponse struct {
	Sentences []natashaSentence `json:"sentences"`
}

type natashaSentence struct {
	Tokens []Token `json:"tokens"`
}

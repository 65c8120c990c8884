// Package ollama is an llm.Backend for an Ollama server's /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/verity/pkg/llm"
)

// DefaultBaseURL is the address of a local Ollama server.
const DefaultBaseURL = "http://localhost:11434"

// Config configures the Ollama backend.
type Config struct {
	// BaseURL of the Ollama server (e.g., "http://localhost:11434")
	BaseURL string

	// Model used when a request does not name one.
	Model string

	// Timeout bounds each HTTP request. Zero means five minutes.
	Timeout time.Duration
}

// Backend talks to Ollama over HTTP.
type Backend struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates an Ollama backend.
func New(config Config, logger *zap.Logger) (*Backend, error) {
	if config.Model == "" {
		return nil, errors.New("ollama model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := config.Timeout
	if timeout == 0 {
		// Local models can be slow to load
		timeout = 5 * time.Minute
	}

	return &Backend{
		baseURL:    baseURL,
		model:      config.Model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Name implements llm.Backend.
func (b *Backend) Name() string {
	return "ollama"
}

// Chat forwards a non-streaming request to the Ollama chat endpoint.
func (b *Backend) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	// Copy so the caller's request is left untouched
	out := *req
	if out.Model == "" {
		out.Model = b.model
	}
	streaming := false
	out.Stream = &streaming

	reqBody, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	chatURL := b.baseURL + "/api/chat"
	b.logger.Debug("sending request to ollama",
		zap.String("url", chatURL),
		zap.String("model", out.Model),
		zap.String("format", string(out.Format)),
		zap.Int("body_size", len(reqBody)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, chatURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned %d: %s", httpResp.StatusCode, string(body))
	}

	var resp llm.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &resp, nil
}

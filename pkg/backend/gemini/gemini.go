// Package gemini is an llm.Backend for the Gemini API, built on the Google
// GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/papercomputeco/verity/pkg/llm"
)

// Config configures the Gemini backend.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Backend implements llm.Backend using Models.GenerateContent.
type Backend struct {
	client *genai.Client
	model  string
}

// New creates a Gemini backend.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key missing")
	}
	if cfg.Model == "" {
		return nil, errors.New("gemini model is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Backend{client: client, model: cfg.Model}, nil
}

// Name implements llm.Backend.
func (b *Backend) Name() string {
	return "gemini"
}

// Chat implements llm.Backend. System messages become the system instruction;
// JSON format requests an application/json response.
func (b *Backend) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = b.model
	}

	config := &genai.GenerateContentConfig{}
	if system := req.SystemPrompt(); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if t, ok := req.Temperature(); ok {
		config.Temperature = genai.Ptr(float32(t))
	}
	if req.Format == llm.FormatJSON {
		config.ResponseMIMEType = "application/json"
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			continue
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := b.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("GenAI generate failed: %w", err)
	}

	out := &llm.ChatResponse{
		Model:     model,
		CreatedAt: time.Now(),
		Message:   llm.Message{Role: llm.RoleAssistant, Content: resp.Text()},
		Done:      true,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if usage := resp.UsageMetadata; usage != nil {
		out.PromptEvalCount = int(usage.PromptTokenCount)
		out.EvalCount = int(usage.CandidatesTokenCount)
	}

	return out, nil
}

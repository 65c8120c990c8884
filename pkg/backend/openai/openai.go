// Package openai is an llm.Backend for OpenAI chat completions and compatible
// gateways, built on the official openai-go SDK.
package openai

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/papercomputeco/verity/pkg/llm"
)

// Config configures the OpenAI backend.
type Config struct {
	APIKey string
	Model  string

	// BaseURL points at an OpenAI-compatible endpoint, e.g. a DeepSeek gateway.
	BaseURL string

	Timeout time.Duration
}

// Backend implements llm.Backend using chat completions.
type Backend struct {
	client openai.Client
	model  string
}

// New creates an OpenAI backend. The SDK's automatic retries are disabled:
// failures surface to the caller immediately.
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	return &Backend{client: openai.NewClient(opts...), model: cfg.Model}, nil
}

// Name implements llm.Backend.
func (b *Backend) Name() string {
	return "openai"
}

// Chat implements llm.Backend. JSON format maps to the json_object response
// format.
func (b *Backend) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = b.model
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if t, ok := req.Temperature(); ok {
		params.Temperature = openai.Float(t)
	}
	if req.Format == llm.FormatJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}

	out := &llm.ChatResponse{
		Model:           resp.Model,
		CreatedAt:       time.Unix(resp.Created, 0),
		Message:         llm.Message{Role: llm.RoleAssistant},
		Done:            true,
		PromptEvalCount: int(resp.Usage.PromptTokens),
		EvalCount:       int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) > 0 {
		out.Message.Content = resp.Choices[0].Message.Content
	}

	return out, nil
}

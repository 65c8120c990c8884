package pipeline

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/verity/pkg/llm"
)

// Responder drafts an answer constrained to the supplied context.
type Responder struct {
	backend llm.Backend
	logger  *zap.Logger
}

// NewResponder creates a Responder calling backend.
func NewResponder(backend llm.Backend, logger *zap.Logger) (*Responder, error) {
	if backend == nil {
		return nil, errors.New("llm backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{backend: backend, logger: logger}, nil
}

// Respond makes exactly one backend call at the caller's temperature and
// returns the trimmed draft. An empty or missing completion yields "".
// Context and question are assumed non-empty.
func (r *Responder) Respond(ctx context.Context, knowledge, question string, settings Settings) (string, error) {
	req := &llm.ChatRequest{
		Model: settings.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: responderDirective(knowledge)},
			{Role: llm.RoleUser, Content: question},
		},
		Format:  llm.FormatText,
		Options: &llm.Options{Temperature: llm.Float64(settings.Temperature)},
	}

	resp, err := r.backend.Chat(ctx, req)
	if err != nil {
		return "", &TransportError{Stage: StageResponder, Err: err}
	}

	draft := strings.TrimSpace(resp.Text())
	r.logger.Debug("draft received",
		zap.String("backend", r.backend.Name()),
		zap.String("model", settings.Model),
		zap.Float64("temperature", settings.Temperature),
		zap.String("draft_preview", truncate(draft, 100)),
	)

	return draft, nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

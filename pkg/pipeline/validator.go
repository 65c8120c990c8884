package pipeline

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/verity/pkg/llm"
)

// Validator audits a draft against the context it was drafted from.
type Validator struct {
	backend llm.Backend
	logger  *zap.Logger
}

// NewValidator creates a Validator calling backend.
func NewValidator(backend llm.Backend, logger *zap.Logger) (*Validator, error) {
	if backend == nil {
		return nil, errors.New("llm backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{backend: backend, logger: logger}, nil
}

// Validate makes exactly one backend call, in JSON mode, at
// Settings.ValidatorTemperature. Malformed output is never an error: it
// becomes a fail-closed verdict. Only backend failures are returned.
func (v *Validator) Validate(ctx context.Context, knowledge, question, draft string, settings Settings) (Verdict, error) {
	req := &llm.ChatRequest{
		Model: settings.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: validatorDirective(knowledge)},
			{Role: llm.RoleUser, Content: validatorPayload(question, draft)},
		},
		Format:  llm.FormatJSON,
		Options: &llm.Options{Temperature: llm.Float64(settings.ValidatorTemperature())},
	}

	resp, err := v.backend.Chat(ctx, req)
	if err != nil {
		return Verdict{}, &TransportError{Stage: StageValidator, Err: err}
	}

	raw := strings.TrimSpace(resp.Text())
	verdict := ParseVerdict(raw)

	if verdict.FailedClosed() {
		v.logger.Warn("validator output rejected, failing closed",
			zap.String("backend", v.backend.Name()),
			zap.Strings("reasons", verdict.Reasons()),
			zap.String("raw_preview", truncate(raw, 200)),
		)
	} else {
		v.logger.Debug("verdict received",
			zap.String("backend", v.backend.Name()),
			zap.String("decision", string(verdict.Decision())),
			zap.Int("reason_count", len(verdict.Reasons())),
		)
	}

	return verdict, nil
}

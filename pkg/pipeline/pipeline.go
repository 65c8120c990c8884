package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/verity/pkg/llm"
)

// Request is one question asked against one context.
type Request struct {
	Context  string
	Question string
	Settings Settings
}

// Result is the outcome of one request.
type Result struct {
	// Answer is what the end user is shown, chosen by SelectAnswer.
	Answer string

	// Draft is the unvalidated responder output. Surface it for debugging
	// only, never as a validated answer.
	Draft string

	Verdict Verdict
}

// Observer is notified about stage timings and verdicts. Implementations must
// be safe for concurrent use.
type Observer interface {
	ObserveStage(stage Stage, elapsed time.Duration, err error)
	ObserveVerdict(v Verdict)
}

// Pipeline runs the Responder and then the Validator for each request. It
// holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	responder *Responder
	validator *Validator
	logger    *zap.Logger
	observer  Observer

	responderTimeout time.Duration
	validatorTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStageTimeouts bounds each backend call with its own deadline. Zero
// leaves that stage bounded only by the caller's context.
func WithStageTimeouts(responder, validator time.Duration) Option {
	return func(p *Pipeline) {
		p.responderTimeout = responder
		p.validatorTimeout = validator
	}
}

// WithObserver registers an observer for stage timings and verdicts.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// New creates a Pipeline whose two stages share backend.
func New(backend llm.Backend, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	responder, err := NewResponder(backend, logger)
	if err != nil {
		return nil, err
	}
	validator, err := NewValidator(backend, logger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		responder: responder,
		validator: validator,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Ask answers req.Question from req.Context. Empty inputs are rejected before
// any backend call. The responder always completes before the validator
// starts. A backend failure in either stage aborts the request with a
// *TransportError.
func (p *Pipeline) Ask(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Context) == "" {
		return nil, ErrEmptyContext
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}

	var draft string
	err := p.stage(ctx, StageResponder, p.responderTimeout, func(ctx context.Context) error {
		var err error
		draft, err = p.responder.Respond(ctx, req.Context, req.Question, req.Settings)
		return err
	})
	if err != nil {
		return nil, err
	}

	var verdict Verdict
	err = p.stage(ctx, StageValidator, p.validatorTimeout, func(ctx context.Context) error {
		var err error
		verdict, err = p.validator.Validate(ctx, req.Context, req.Question, draft, req.Settings)
		return err
	})
	if err != nil {
		return nil, err
	}

	if p.observer != nil {
		p.observer.ObserveVerdict(verdict)
	}

	res := &Result{
		Answer:  SelectAnswer(draft, verdict),
		Draft:   draft,
		Verdict: verdict,
	}

	p.logger.Info("question answered",
		zap.String("decision", string(verdict.Decision())),
		zap.Bool("fail_closed", verdict.FailedClosed()),
		zap.String("model", req.Settings.Model),
	)

	return res, nil
}

func (p *Pipeline) stage(ctx context.Context, stage Stage, timeout time.Duration, call func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := call(ctx)
	elapsed := time.Since(start)

	if p.observer != nil {
		p.observer.ObserveStage(stage, elapsed, err)
	}
	if err != nil {
		p.logger.Error("stage failed",
			zap.String("stage", string(stage)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}

	return err
}

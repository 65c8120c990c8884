// Package llmtest provides a scripted llm.Backend for tests. It never calls a
// real model.
package llmtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/papercomputeco/verity/pkg/llm"
)

// ErrExhausted is returned once every scripted reply has been consumed.
var ErrExhausted = errors.New("llmtest: no scripted reply left")

// Reply is one scripted backend outcome.
type Reply struct {
	Text string
	Err  error

	// Missing makes the backend return a nil response with no error.
	Missing bool
}

// Backend replays Replies in order and records every request it receives.
type Backend struct {
	mu       sync.Mutex
	replies  []Reply
	requests []*llm.ChatRequest
}

// New returns a backend that answers with the given texts, in order.
func New(texts ...string) *Backend {
	b := &Backend{}
	for _, t := range texts {
		b.replies = append(b.replies, Reply{Text: t})
	}
	return b
}

// NewWithReplies returns a backend scripted with arbitrary replies.
func NewWithReplies(replies ...Reply) *Backend {
	return &Backend{replies: replies}
}

// Name implements llm.Backend.
func (b *Backend) Name() string {
	return "scripted"
}

// Chat implements llm.Backend.
func (b *Backend) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = append(b.requests, req)
	if len(b.replies) == 0 {
		return nil, ErrExhausted
	}

	next := b.replies[0]
	b.replies = b.replies[1:]

	switch {
	case next.Err != nil:
		return nil, next.Err
	case next.Missing:
		return nil, nil
	}

	return &llm.ChatResponse{
		Model:     req.Model,
		CreatedAt: time.Now(),
		Message:   llm.Message{Role: llm.RoleAssistant, Content: next.Text},
		Done:      true,
	}, nil
}

// Requests returns the requests received so far.
func (b *Backend) Requests() []*llm.ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*llm.ChatRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

// Func adapts a function into an llm.Backend, for tests that need to compute
// replies from the request.
type Func func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

// Name implements llm.Backend.
func (f Func) Name() string {
	return "func"
}

// Chat implements llm.Backend.
func (f Func) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return f(ctx, req)
}

// Text builds a completed response carrying text.
func Text(text string) *llm.ChatResponse {
	return &llm.ChatResponse{
		CreatedAt: time.Now(),
		Message:   llm.Message{Role: llm.RoleAssistant, Content: text},
		Done:      true,
	}
}

package llm

import "context"

// Backend is a backing model that answers one chat request at a time.
// Implementations must be safe for concurrent use; they hold process-wide,
// read-only credentials and configuration.
type Backend interface {
	// Name identifies the provider, e.g. "gemini".
	Name() string

	// Chat performs a single, non-streaming completion. A transport or provider
	// failure is returned as an error; an empty completion is not an error.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

package llm

import "strings"

// Format selects the shape of the model output.
type Format string

const (
	// FormatText requests free text. It is the zero value.
	FormatText Format = ""

	// FormatJSON asks the backend for its constrained JSON output mode.
	// Backends without such a mode ignore it and return whatever the model produced.
	FormatJSON Format = "json"
)

// ChatRequest represents a chat completion request (Ollama-compatible on the wire).
type ChatRequest struct {
	Model    string    `json:"model"`            // Model name; empty selects the backend default
	Messages []Message `json:"messages"`         // System directive followed by the user turn
	Stream   *bool     `json:"stream,omitempty"` // Always false for this service
	Format   Format    `json:"format,omitempty"` // Response format ("json" for JSON mode)

	// Generation options
	Options *Options `json:"options,omitempty"`
}

// SystemPrompt joins every system message in the request.
func (r *ChatRequest) SystemPrompt() string {
	var parts []string
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// UserPrompt returns the content of the last user message.
func (r *ChatRequest) UserPrompt() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Temperature reports the requested sampling temperature, if any.
func (r *ChatRequest) Temperature() (float64, bool) {
	if r.Options == nil || r.Options.Temperature == nil {
		return 0, false
	}
	return *r.Options.Temperature, true
}

package llm

import "time"

// ChatResponse represents a chat completion response.
type ChatResponse struct {
	Model     string    `json:"model"`      // Model that generated the response
	CreatedAt time.Time `json:"created_at"` // Response timestamp
	Message   Message   `json:"message"`    // The assistant's response
	Done      bool      `json:"done"`       // Whether generation is complete

	// Metrics, when the provider reports them
	TotalDuration   int64 `json:"total_duration,omitempty"`    // Total time in nanoseconds
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"` // Tokens in prompt
	EvalCount       int   `json:"eval_count,omitempty"`        // Generated tokens
}

// Text returns the assistant content, or "" for a nil response.
func (r *ChatResponse) Text() string {
	if r == nil {
		return ""
	}
	return r.Message.Content
}

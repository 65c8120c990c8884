package llm

// Options contains model inference parameters.
type Options struct {
	// Sampling parameters
	Temperature *float64 `json:"temperature,omitempty"` // Sampling randomness (0.0-1.0 for this service)
	TopP        *float64 `json:"top_p,omitempty"`       // Nucleus sampling threshold
	Seed        *int     `json:"seed,omitempty"`        // Random seed for reproducibility

	// Length parameters
	NumPredict *int `json:"num_predict,omitempty"` // Max tokens to generate

	// Stop sequences
	Stop []string `json:"stop,omitempty"`
}

// Float64 returns a pointer to v, for populating optional parameters.
func Float64(v float64) *float64 {
	return &v
}

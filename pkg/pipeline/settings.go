// Package pipeline implements the two-pass answering pipeline: a Responder
// drafts an answer constrained to a caller-supplied context, and a Validator
// audits that draft against the same context, approving it or replacing it.
//
// Anything the pipeline cannot confirm resolves to FallbackAnswer.
package pipeline

// FallbackAnswer is returned whenever the context does not support an answer,
// or the validator output cannot be trusted.
const FallbackAnswer = "I don't know based on the provided context."

// MaxValidatorTemperature caps the sampling temperature of the validation call.
const MaxValidatorTemperature = 0.3

// Settings are the per-call generation settings.
type Settings struct {
	// Model identifies the backing model. Empty selects the backend default.
	Model string `json:"model,omitempty" toml:"model"`

	// Temperature is the sampling randomness in [0,1].
	Temperature float64 `json:"temperature" toml:"temperature"`
}

// ValidatorTemperature returns the temperature used for the validation call:
// the caller's temperature, capped at MaxValidatorTemperature.
func (s Settings) ValidatorTemperature() float64 {
	if s.Temperature > MaxValidatorTemperature {
		return MaxValidatorTemperature
	}
	return s.Temperature
}

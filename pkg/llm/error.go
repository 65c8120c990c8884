// Package llm provides provider-neutral representations of the chat inference
// requests and responses exchanged with a backing model.
package llm

// ErrorResponse represents an error returned over HTTP.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Package llm provides resilient model invocation: an ordered fallback chain
// of models, each attempted with bounded exponential-backoff retry.
package llm

import "context"

// Role constants for chat messages.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelRequest is the fully resolved request sent to a backend.
type ModelRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Backend performs a single model invocation.
// Implementations must be safe for concurrent use; the router issues
// concurrent calls when stages run in parallel.
type Backend interface {
	// Complete sends the request and returns the generated text.
	Complete(ctx context.Context, req ModelRequest) (string, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, req ModelRequest) (string, error)

// Complete implements Backend.
func (f BackendFunc) Complete(ctx context.Context, req ModelRequest) (string, error) {
	return f(ctx, req)
}

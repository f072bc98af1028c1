// Package llm defines the completion collaborator invoked by ai nodes. The
// engine treats it as a black box with its own retry policy; providers live
// in subpackages.
package llm

import "context"

// Message is one turn of the running conversation handed to the model.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// CompletionRequest carries the ai node's configuration plus the
// conversation transcript.
type CompletionRequest struct {
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	Messages     []Message
}

// Client produces a completion for a conversation. Implementations must
// honor ctx cancellation; the engine bounds each call with a timeout.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req CompletionRequest) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}

// Package llm defines the Provider interface for the Large Language Model
// backends that judge alert decisions.
//
// A provider wraps a remote or local model API (OpenAI, any backend reachable
// through any-llm-go, or a local Ollama instance) and exposes a single
// blocking completion call. The validator only needs one short JSON answer
// per alert, so streaming, tool calling and token accounting are left out.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the backend. Counts
// are zero when the backend does not report them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional instruction injected before Messages.
	SystemPrompt string

	// Temperature controls output randomness. Zero leaves the backend default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means the backend default.
	MaxTokens int

	// JSON asks the backend to constrain its output to a single JSON object
	// when it supports such a mode.
	JSON bool
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the reply.
	Content string

	// Usage contains token accounting for this request.
	Usage Usage
}

// Provider is the abstraction over any completion backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// It returns promptly with ctx.Err() when ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

// UserPrompt builds a request holding a single user message.
func UserPrompt(prompt string) CompletionRequest {
	return CompletionRequest{Messages: []Message{{Role: RoleUser, Content: prompt}}}
}

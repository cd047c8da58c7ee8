package llm

import (
	"context"

	"r2sleuth/internal/history"
)

// ChatRequest is the provider-agnostic payload for a streaming completion.
type ChatRequest struct {
	Model    string           `json:"model"`
	Messages []history.Turn   `json:"messages"`
	Stream   bool             `json:"stream"`
	Thinking *ThinkingOptions `json:"thinking,omitempty"`
}

// ThinkingOptions carries the optional reasoning-budget hint. Providers that
// do not understand it reject the request with an unsupported-parameter
// error, which callers handle by retrying without the hint.
type ThinkingOptions struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// StreamChunk is one incremental unit from the provider. Either field may be
// empty; fragments arrive in strict order and are concatenated by the caller.
type StreamChunk struct {
	Content   string
	Reasoning string
}

// Stream yields chunks until io.EOF or a transport error. Close releases the
// underlying connection; it is safe to call before the stream is drained.
type Stream interface {
	Recv() (StreamChunk, error)
	Close() error
}

// StreamClient represents a provider capable of streaming chat completions.
type StreamClient interface {
	StreamChat(ctx context.Context, req ChatRequest) (Stream, error)
}

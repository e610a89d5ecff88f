// Package llm adapts chat-completion providers to one request/response shape
// used by summarization and dialogue script generation.
package llm

import "context"

// Client is implemented by every language model provider.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}

type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the provider for a JSON object response where supported.
	// Callers still extract the object themselves.
	JSON bool
}

type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// Usage is token accounting as reported by the provider.
type Usage struct {
	Input  int `json:"input_tokens"`
	Output int `json:"output_tokens"`
	Total  int `json:"total_tokens"`
}

package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type CompleteRequest struct {
	Operation string   `json:"operation"`
	System    string   `json:"system,omitempty"`
	Prompt    string   `json:"prompt"`
	Context   []string `json:"context,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty"`
}

type CompleteResponse struct {
	Text             string `json:"text"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

// Fragment is one piece of a streamed completion. Err is set on the final
// fragment when the stream terminated abnormally.
type Fragment struct {
	Text string
	Done bool
	Err  error
}

type LLMProvider interface {
	Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, ProviderInfo, error)
	// Stream returns a lazy, finite, non-restartable fragment sequence.
	// The channel is closed after the final fragment. Cancelling ctx stops
	// production promptly.
	Stream(ctx context.Context, req CompleteRequest) (<-chan Fragment, ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}

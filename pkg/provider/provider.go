package provider

import (
	"context"

	"github.com/rhuss/claudepipe/pkg/api"
)

// Provider abstracts an upstream LLM vendor behind the OpenAI Chat
// Completions shapes the gateway exposes. Each adapter handles its own
// vendor protocol internally.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() ProviderCapabilities

	// Complete performs non-streaming inference.
	Complete(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletion, error)

	// Stream performs streaming inference. The returned channel receives
	// StreamItem values and is closed by the provider when the stream
	// completes or errors.
	Stream(ctx context.Context, req *api.ChatCompletionRequest) (<-chan StreamItem, error)

	// ListModels returns the models the provider serves.
	ListModels(ctx context.Context) ([]api.Model, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}

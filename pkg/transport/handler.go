package transport

import (
	"context"

	"github.com/rhuss/claudepipe/pkg/api"
)

// ChatCompleter handles one chat completion. The implementation writes the
// result to w: a whole completion for non-streaming requests, or chunks
// followed by Done (or an in-stream error) for streaming ones. A returned
// error before anything was written becomes a JSON error response.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error
}

// ChatCompleterFunc is an adapter that allows using an ordinary function
// as a ChatCompleter.
type ChatCompleterFunc func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error

// CreateChatCompletion calls f(ctx, req, w).
func (f ChatCompleterFunc) CreateChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ModelLister lists the models the gateway serves.
type ModelLister interface {
	ListModels(ctx context.Context) ([]api.Model, error)
}

// ResponseWriter abstracts streaming and non-streaming output.
//
// WriteCompletion and the streaming methods are mutually exclusive on one
// writer. After WriteDone or WriteStreamError the writer is closed and
// further writes return an error.
type ResponseWriter interface {
	// WriteChunk sends one chat.completion.chunk.
	WriteChunk(ctx context.Context, chunk *api.ChatCompletionChunk) error

	// WriteStreamError sends an in-stream error object and closes the stream.
	// No [DONE] follows.
	WriteStreamError(ctx context.Context, err *api.APIError) error

	// WriteDone sends the [DONE] sentinel and closes the stream.
	WriteDone(ctx context.Context) error

	// WriteCompletion sends a complete non-streaming response.
	WriteCompletion(ctx context.Context, resp *api.ChatCompletion) error

	// Flush ensures buffered data is sent to the client.
	Flush() error
}

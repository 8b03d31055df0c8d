package provider

import "github.com/rhuss/claudepipe/pkg/api"

// ProviderCapabilities declares what features the backend supports.
// Used by the transport layer for early request validation.
type ProviderCapabilities struct {
	// Streaming indicates whether the provider supports streaming responses.
	Streaming bool

	// ToolCalling indicates whether the provider supports function/tool calls.
	ToolCalling bool

	// Vision indicates whether the provider supports image inputs.
	Vision bool

	// Documents indicates whether the provider accepts PDF and document parts.
	Documents bool

	// Reasoning indicates whether the provider can stream reasoning content.
	Reasoning bool

	// MaxContextWindow is the maximum token count (0 = unknown/unlimited).
	MaxContextWindow int
}

// StreamItem is one element of a translated stream: a chunk, the terminal
// [DONE] marker, or an error. Exactly one field is set.
type StreamItem struct {
	Chunk *api.ChatCompletionChunk
	Done  bool
	Err   *api.APIError
}

// ChunkItem wraps a chunk as a StreamItem.
func ChunkItem(c *api.ChatCompletionChunk) StreamItem { return StreamItem{Chunk: c} }

// DoneItem is the terminal [DONE] marker.
func DoneItem() StreamItem { return StreamItem{Done: true} }

// ErrorItem wraps an error as a StreamItem.
func ErrorItem(err *api.APIError) StreamItem { return StreamItem{Err: err} }

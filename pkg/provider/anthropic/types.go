package anthropic

import (
	"encoding/json"

	"github.com/rhuss/claudepipe/pkg/api"
)

// Messages API wire types. Only the fields the gateway reads or writes are
// modelled.

// Block types.
const (
	blockText       = "text"
	blockImage      = "image"
	blockDocument   = "document"
	blockToolUse    = "tool_use"
	blockToolResult = "tool_result"
	blockThinking   = "thinking"
)

// MessagesRequest is the body of POST /v1/messages.
type MessagesRequest struct {
	Model          string              `json:"model"`
	Messages       []Message           `json:"messages"`
	MaxTokens      int                 `json:"max_tokens"`
	System         string              `json:"system,omitempty"`
	Temperature    *float64            `json:"temperature,omitempty"`
	TopK           *int                `json:"top_k,omitempty"`
	TopP           *float64            `json:"top_p,omitempty"`
	Stream         bool                `json:"stream"`
	Metadata       map[string]any      `json:"metadata,omitempty"`
	Tools          []Tool              `json:"tools,omitempty"`
	ToolChoice     *ToolChoice         `json:"tool_choice,omitempty"`
	Thinking       *Thinking           `json:"thinking,omitempty"`
	ResponseFormat *api.ResponseFormat `json:"response_format,omitempty"`
}

// Message is one conversation turn. Content is always a block list.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Source is the source object of image and document blocks.
type Source struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
	FileID    string `json:"file_id,omitempty"`
}

// ContentBlock is the tagged union of Messages API content blocks. The same
// type is used for request blocks and for response content.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image, document. Source is raw so client-provided document sources
	// pass through untouched.
	Source    json.RawMessage      `json:"source,omitempty"`
	Title     string               `json:"title,omitempty"`
	Context   string               `json:"context,omitempty"`
	Citations *api.CitationsConfig `json:"citations,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`

	// thinking (responses only)
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	CacheControl *api.CacheControl `json:"cache_control,omitempty"`
}

// MarshalJSON always writes the text field of text blocks, so that an
// empty assistant turn is sent as {"type":"text","text":""}.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	type alias ContentBlock
	if b.Type == blockText {
		return json.Marshal(struct {
			alias
			Text string `json:"text"`
		}{alias(b), b.Text})
	}
	return json.Marshal(alias(b))
}

func textBlock(s string) ContentBlock {
	return ContentBlock{Type: blockText, Text: s}
}

func rawSource(s Source) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// Tool is a Messages API tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolChoice is the Messages API tool_choice object.
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Thinking enables extended thinking.
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// Usage is the Messages API token accounting object.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// MessagesResponse is a non-streaming Messages API response.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// errorEnvelope is the vendor error body: {"type":"error","error":{...}}.
type errorEnvelope struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

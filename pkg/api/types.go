package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Roles and content part types
// ---------------------------------------------------------------------------

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Content part types accepted in a message content list.
const (
	PartText          = "text"
	PartImageURL      = "image_url"
	PartPDFURL        = "pdf_url"
	PartDocument      = "document"
	PartFileReference = "file_reference"
)

// ---------------------------------------------------------------------------
// Message content
// ---------------------------------------------------------------------------

// CacheControl marks a content part as a prompt cache breakpoint.
type CacheControl struct {
	Type string `json:"type"`
	TTL  string `json:"ttl,omitempty"`
}

// URLRef is the {"url": ...} object used by image_url and pdf_url parts.
type URLRef struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// CitationsConfig toggles citation generation for a document part.
type CitationsConfig struct {
	Enabled bool `json:"enabled"`
}

// ContentPart is a tagged union of the content parts a message may carry.
// Only the fields relevant for Type are populated.
type ContentPart struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image_url / pdf_url
	ImageURL *URLRef `json:"image_url,omitempty"`
	PDFURL   *URLRef `json:"pdf_url,omitempty"`

	// document: Source is passed to the upstream untouched.
	Source    json.RawMessage  `json:"source,omitempty"`
	Title     string           `json:"title,omitempty"`
	Context   string           `json:"context,omitempty"`
	Citations *CitationsConfig `json:"citations,omitempty"`

	// file_reference
	FileID string `json:"file_id,omitempty"`

	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// MessageContent holds message content, which on the wire is either a plain
// string or a list of content parts. A null or absent value leaves both
// fields empty.
type MessageContent struct {
	Text  *string
	Parts []ContentPart
}

// TextContent builds a MessageContent from a plain string.
func TextContent(s string) MessageContent {
	return MessageContent{Text: &s}
}

// PartsContent builds a MessageContent from a list of parts.
func PartsContent(parts ...ContentPart) MessageContent {
	return MessageContent{Parts: parts}
}

// IsEmpty reports whether the content carries neither text nor parts.
func (c MessageContent) IsEmpty() bool {
	return (c.Text == nil || *c.Text == "") && len(c.Parts) == 0
}

// IsList reports whether the content was given as a list of parts.
func (c MessageContent) IsList() bool {
	return c.Text == nil && c.Parts != nil
}

// PlainText concatenates the string content or all text parts.
func (c MessageContent) PlainText() string {
	if c.Text != nil {
		return *c.Text
	}
	var b strings.Builder
	for _, p := range c.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// MarshalJSON writes a string, a list, or null.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	switch {
	case c.Text != nil:
		return json.Marshal(*c.Text)
	case c.Parts != nil:
		return json.Marshal(c.Parts)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a string, a list of parts, or null.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	*c = MessageContent{}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		c.Text = &s
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or a list of parts: %w", err)
	}
	if parts == nil {
		parts = []ContentPart{}
	}
	c.Parts = parts
	return nil
}

// ChatMessage is one message of an OpenAI-style conversation.
type ChatMessage struct {
	Role       Role           `json:"role"`
	Content    MessageContent `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// Parts returns the message content normalized to a list of parts.
// String content becomes a single text part; empty strings yield nil.
func (m ChatMessage) Parts() []ContentPart {
	if m.Content.Text != nil {
		if *m.Content.Text == "" {
			return nil
		}
		return []ContentPart{{Type: PartText, Text: *m.Content.Text}}
	}
	return m.Content.Parts
}

// ---------------------------------------------------------------------------
// Tools
// ---------------------------------------------------------------------------

// Tool is an OpenAI tool definition. Only "function" tools are forwarded.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes a callable function.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is a completed tool call in an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolChoice is either a strategy string ("none", "auto", "required") or a
// specific function selection.
type ToolChoice struct {
	String   string              `json:"-"`
	Function *ToolChoiceFunction `json:"-"`
}

// ToolChoiceFunction selects a function by name:
// {"type":"function","function":{"name":"..."}}.
type ToolChoiceFunction struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

var (
	ToolChoiceAuto     = ToolChoice{String: "auto"}
	ToolChoiceNone     = ToolChoice{String: "none"}
	ToolChoiceRequired = ToolChoice{String: "required"}
)

// NewToolChoiceFunction creates a ToolChoice forcing the named function.
func NewToolChoiceFunction(name string) ToolChoice {
	f := &ToolChoiceFunction{Type: "function"}
	f.Function.Name = name
	return ToolChoice{Function: f}
}

// MarshalJSON serializes ToolChoice as either a JSON string or a JSON object.
func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	if tc.String != "" {
		return json.Marshal(tc.String)
	}
	if tc.Function != nil {
		return json.Marshal(tc.Function)
	}
	return nil, fmt.Errorf("ToolChoice has neither string value nor function")
}

// UnmarshalJSON deserializes ToolChoice from either a JSON string or a JSON object.
func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		tc.String = s
		tc.Function = nil
		return nil
	}

	var f ToolChoiceFunction
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("tool_choice must be a string or object: %w", err)
	}
	tc.String = ""
	tc.Function = &f
	return nil
}

// ---------------------------------------------------------------------------
// Request
// ---------------------------------------------------------------------------

// ResponseFormat is the OpenAI response_format object. Only the type is forwarded.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions.
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Tools          []Tool          `json:"tools,omitempty"`
	ToolChoice     *ToolChoice     `json:"tool_choice,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	TopK           *int            `json:"top_k,omitempty"`
	Stream         *bool           `json:"stream,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	User           string          `json:"user,omitempty"`

	// InterleavedThinking requests interleaved thinking between tool calls.
	// It only has an effect for thinking model variants.
	InterleavedThinking bool `json:"interleaved_thinking,omitempty"`
}

// IsStream reports whether a streaming response was requested. Streaming is
// the default when the field is absent.
func (r *ChatCompletionRequest) IsStream() bool {
	return r.Stream == nil || *r.Stream
}

// ---------------------------------------------------------------------------
// Non-streaming response
// ---------------------------------------------------------------------------

// Usage reports token counts, including prompt cache activity.
type Usage struct {
	PromptTokens             int `json:"prompt_tokens"`
	CompletionTokens         int `json:"completion_tokens"`
	TotalTokens              int `json:"total_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// ResponseMessage is the assistant message of a completion choice.
type ResponseMessage struct {
	Role             Role       `json:"role"`
	Content          *string    `json:"content"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// Choice is one completion choice. The gateway always returns exactly one.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ChatCompletion is the non-streaming response object ("chat.completion").
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// ---------------------------------------------------------------------------
// Streaming chunks
// ---------------------------------------------------------------------------

// Finish reasons emitted on the final chunk or choice.
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
	FinishReasonLength    = "length"
)

// ChunkFunctionCall carries an incremental function name and arguments.
type ChunkFunctionCall struct {
	Name      *string `json:"name,omitempty"`
	Arguments string  `json:"arguments"`
}

// ChunkToolCall is a tool call fragment in a chunk delta. ID, Type and the
// function name appear only on the first fragment of a call.
type ChunkToolCall struct {
	Index    int               `json:"index"`
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function ChunkFunctionCall `json:"function"`
}

// ChunkDelta carries the incremental content of a chunk. Content and
// ReasoningContent are pointers so that absent and empty can be told apart.
type ChunkDelta struct {
	Role             Role            `json:"role,omitempty"`
	Content          *string         `json:"content,omitempty"`
	ReasoningContent *string         `json:"reasoning_content,omitempty"`
	ToolCalls        []ChunkToolCall `json:"tool_calls,omitempty"`
}

// ChunkChoice is the single choice of a chunk. FinishReason is nil until the
// final chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk is one streamed chunk ("chat.completion.chunk").
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ---------------------------------------------------------------------------
// Models
// ---------------------------------------------------------------------------

// Model describes one entry of GET /v1/models.
type Model struct {
	ID             string `json:"id"`
	Object         string `json:"object"`
	Name           string `json:"name"`
	OwnedBy        string `json:"owned_by"`
	ContextLength  int    `json:"context_length"`
	SupportsVision bool   `json:"supports_vision"`
}

// ModelList is the body of GET /v1/models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

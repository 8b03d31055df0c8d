package anthropic

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rhuss/claudepipe/pkg/api"
	"github.com/rhuss/claudepipe/pkg/debug"
)

// messagesPath is appended to Config.BaseURL.
const messagesPath = "/v1/messages"

var defaultInputSchema = json.RawMessage(`{"type":"object"}`)

// BuiltRequest is everything needed to call the Messages API: the vendor
// model name, the payload and the headers.
type BuiltRequest struct {
	Model    string
	Thinking bool
	Payload  *MessagesRequest
	Header   http.Header
}

// Beta returns the anthropic-beta flags as a list.
func (b *BuiltRequest) Beta() []string {
	v := b.Header.Get("anthropic-beta")
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

// Builder maps OpenAI-style requests onto Messages API calls. It holds only
// configuration and is safe for concurrent use.
type Builder struct {
	cfg Config
}

// NewBuilder creates a Builder. Zero config fields take their defaults.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg.withDefaults()}
}

// URL returns the Messages API endpoint.
func (b *Builder) URL() string {
	return strings.TrimRight(b.cfg.BaseURL, "/") + messagesPath
}

// Build produces the upstream call for req. It fails before any network
// activity when the API key is missing or media limits are violated.
func (b *Builder) Build(req *api.ChatCompletionRequest) (*BuiltRequest, *api.APIError) {
	if b.cfg.APIKey == "" {
		return nil, api.NewConfigurationError("ANTHROPIC_API_KEY is required")
	}

	system, messages := splitSystem(req.Messages)

	if err := ValidateImageTotals(messages); err != nil {
		return nil, err
	}

	model, thinking := ResolveModel(req.Model)

	converted, err := convertMessages(messages)
	if err != nil {
		return nil, err
	}

	payload := &MessagesRequest{
		Model:       model,
		Messages:    converted,
		MaxTokens:   ClampMaxTokens(model, req.MaxTokens),
		System:      system,
		Temperature: req.Temperature,
		TopK:        req.TopK,
		TopP:        req.TopP,
		Stream:      req.IsStream(),
		Metadata:    req.Metadata,
	}

	if len(req.Tools) > 0 {
		payload.Tools = convertTools(req.Tools)
		payload.ToolChoice = convertToolChoice(req.ToolChoice)
	}

	if req.ResponseFormat != nil {
		payload.ResponseFormat = &api.ResponseFormat{Type: req.ResponseFormat.Type}
	}

	if thinking {
		payload.Thinking = &Thinking{Type: "enabled", BudgetTokens: b.cfg.ThinkingBudgetTokens}
	}

	header := make(http.Header)
	header.Set("x-api-key", b.cfg.APIKey)
	header.Set("anthropic-version", b.cfg.APIVersion)
	header.Set("content-type", "application/json")
	if flags := betaFlags(model, thinking, req); len(flags) > 0 {
		header.Set("anthropic-beta", strings.Join(flags, ","))
	}

	debug.Log("anthropic", "built request",
		"model", model,
		"thinking", thinking,
		"max_tokens", payload.MaxTokens,
		"messages", len(converted),
		"tools", len(payload.Tools),
		"beta", header.Get("anthropic-beta"),
	)

	return &BuiltRequest{
		Model:    model,
		Thinking: thinking,
		Payload:  payload,
		Header:   header,
	}, nil
}

// convertTools keeps function tools and maps them onto name, description
// and input_schema.
func convertTools(tools []api.Tool) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		if t.Type != "function" {
			continue
		}
		schema := t.Function.Parameters
		if len(schema) == 0 || string(schema) == "null" {
			schema = defaultInputSchema
		}
		out = append(out, Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: schema,
		})
	}
	return out
}

// convertToolChoice maps the OpenAI tool_choice onto the vendor form. An
// absent choice means auto.
func convertToolChoice(tc *api.ToolChoice) *ToolChoice {
	if tc == nil {
		return &ToolChoice{Type: "auto"}
	}
	if tc.Function != nil {
		return &ToolChoice{Type: "tool", Name: tc.Function.Function.Name}
	}
	switch tc.String {
	case "none":
		return &ToolChoice{Type: "none"}
	case "required":
		return &ToolChoice{Type: "any"}
	default:
		return &ToolChoice{Type: "auto"}
	}
}

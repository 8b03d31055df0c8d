// Package mcpserver exposes the chat pipe as a Model Context Protocol
// server with two tools: "chat" runs a non-streaming completion and
// "list_models" returns the model catalogue.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/claudepipe/pkg/api"
	"github.com/rhuss/claudepipe/pkg/debug"
	"github.com/rhuss/claudepipe/pkg/observability"
	"github.com/rhuss/claudepipe/pkg/transport"
)

// Version is reported to MCP clients.
var Version = "dev"

// Config configures the MCP server.
type Config struct {
	// DefaultModel is used when a chat call names no model.
	DefaultModel string
}

// Server wraps an mcp.Server backed by a chat completer.
type Server struct {
	server    *mcp.Server
	completer transport.ChatCompleter
	models    transport.ModelLister
	cfg       Config
}

// ChatInput is the argument object of the chat tool.
type ChatInput struct {
	Prompt      string   `json:"prompt" jsonschema:"the user message"`
	System      string   `json:"system,omitempty" jsonschema:"optional system prompt"`
	Model       string   `json:"model,omitempty" jsonschema:"model id, for example claude-sonnet-4 or api/claude-sonnet-4-thinking"`
	MaxTokens   int      `json:"max_tokens,omitempty" jsonschema:"maximum output tokens"`
	Temperature *float64 `json:"temperature,omitempty" jsonschema:"sampling temperature"`
}

// ChatOutput is the structured result of the chat tool.
type ChatOutput struct {
	ID           string     `json:"id"`
	Model        string     `json:"model"`
	Content      string     `json:"content"`
	Reasoning    string     `json:"reasoning,omitempty"`
	FinishReason string     `json:"finish_reason"`
	Usage        *api.Usage `json:"usage,omitempty"`
}

// ModelsOutput is the structured result of the list_models tool.
type ModelsOutput struct {
	Models []api.Model `json:"models"`
}

// New creates the server and registers its tools.
func New(completer transport.ChatCompleter, models transport.ModelLister, cfg Config) *Server {
	s := &Server{
		server: mcp.NewServer(
			&mcp.Implementation{Name: "claudepipe", Version: Version},
			nil,
		),
		completer: completer,
		models:    models,
		cfg:       cfg,
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chat",
		Description: "Send a prompt to a Claude model and return the complete answer",
	}, counted("chat", s.chat))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_models",
		Description: "List the Claude models available through this server",
	}, counted("list_models", s.listModels))

	return s
}

// counted records each call of h in the MCP tool call counter.
func counted[In, Out any](name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		res, out, err := h(ctx, req, in)
		status := "ok"
		if err != nil || (res != nil && res.IsError) {
			status = "error"
		}
		observability.MCPToolCallsTotal.WithLabelValues(name, status).Inc()
		return res, out, err
	}
}

// MCPServer returns the underlying server, for example to run it over stdio.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Handler serves the MCP streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func (s *Server) chat(ctx context.Context, _ *mcp.CallToolRequest, in ChatInput) (*mcp.CallToolResult, ChatOutput, error) {
	if in.Prompt == "" {
		return toolError("prompt is required"), ChatOutput{}, nil
	}

	req := buildRequest(in, s.cfg.DefaultModel)
	if transport.RequestIDFromContext(ctx) == "" {
		ctx = transport.ContextWithRequestID(ctx, transport.NewRequestID())
	}
	debug.Log("mcp", "chat tool call", "model", req.Model, "prompt_chars", len(in.Prompt))

	w := &completionWriter{}
	if err := s.completer.CreateChatCompletion(ctx, req, w); err != nil {
		return toolError(transport.AsAPIError(err).Error()), ChatOutput{}, nil
	}
	if w.completion == nil || len(w.completion.Choices) == 0 {
		return toolError("the model returned no completion"), ChatOutput{}, nil
	}

	c := w.completion
	choice := c.Choices[0]
	out := ChatOutput{
		ID:           c.ID,
		Model:        c.Model,
		Reasoning:    choice.Message.ReasoningContent,
		FinishReason: choice.FinishReason,
		Usage:        c.Usage,
	}
	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: out.Content}},
	}, out, nil
}

func (s *Server) listModels(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, ModelsOutput, error) {
	models, err := s.models.ListModels(ctx)
	if err != nil {
		return toolError(err.Error()), ModelsOutput{}, nil
	}
	if models == nil {
		models = []api.Model{}
	}

	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: strings.Join(ids, "\n")}},
	}, ModelsOutput{Models: models}, nil
}

func buildRequest(in ChatInput, defaultModel string) *api.ChatCompletionRequest {
	stream := false
	req := &api.ChatCompletionRequest{
		Model:       in.Model,
		Stream:      &stream,
		Temperature: in.Temperature,
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	if in.MaxTokens > 0 {
		n := in.MaxTokens
		req.MaxTokens = &n
	}
	if in.System != "" {
		req.Messages = append(req.Messages, api.ChatMessage{Role: api.RoleSystem, Content: api.TextContent(in.System)})
	}
	req.Messages = append(req.Messages, api.ChatMessage{Role: api.RoleUser, Content: api.TextContent(in.Prompt)})
	return req
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}

var errUnexpectedStream = errors.New("mcp chat: completer produced a stream for a non-streaming request")

// completionWriter captures the single completion of a non-streaming call.
type completionWriter struct {
	completion *api.ChatCompletion
}

func (w *completionWriter) WriteChunk(context.Context, *api.ChatCompletionChunk) error {
	return errUnexpectedStream
}

func (w *completionWriter) WriteStreamError(_ context.Context, e *api.APIError) error {
	return fmt.Errorf("%w: %v", errUnexpectedStream, e)
}

func (w *completionWriter) WriteDone(context.Context) error {
	return errUnexpectedStream
}

func (w *completionWriter) WriteCompletion(_ context.Context, c *api.ChatCompletion) error {
	w.completion = c
	return nil
}

func (w *completionWriter) Flush() error { return nil }

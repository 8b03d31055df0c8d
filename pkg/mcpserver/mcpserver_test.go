package mcpserver

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	dto "github.com/prometheus/client_model/go"

	"github.com/rhuss/claudepipe/pkg/api"
	"github.com/rhuss/claudepipe/pkg/observability"
	"github.com/rhuss/claudepipe/pkg/transport"
)

type fakeCompleter struct {
	got *api.ChatCompletionRequest
	err error
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
	f.got = req
	if f.err != nil {
		return f.err
	}
	content := "Paris."
	return w.WriteCompletion(ctx, &api.ChatCompletion{
		ID:     "chatcmpl-mcp",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []api.Choice{{
			Message: api.ResponseMessage{
				Role:             api.RoleAssistant,
				Content:          &content,
				ReasoningContent: "The capital of France.",
			},
			FinishReason: api.FinishReasonStop,
		}},
		Usage: &api.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
	})
}

type fakeModels struct {
	err error
}

func (f fakeModels) ListModels(context.Context) ([]api.Model, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []api.Model{
		{ID: "api/claude-sonnet-4", Object: "model", OwnedBy: "anthropic"},
		{ID: "api/claude-sonnet-4-thinking", Object: "model", OwnedBy: "anthropic"},
	}, nil
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serverT, clientT := mcp.NewInMemoryTransports()
	go func() { _ = s.MCPServer().Run(ctx, serverT) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want *mcp.TextContent", res.Content[0])
	}
	return tc.Text
}

func TestListTools(t *testing.T) {
	session := connect(t, New(&fakeCompleter{}, fakeModels{}, Config{}))

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		if tool.InputSchema == nil {
			t.Errorf("tool %s has no input schema", tool.Name)
		}
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "chat" || names[1] != "list_models" {
		t.Errorf("tools = %v", names)
	}
}

func TestChatTool(t *testing.T) {
	c := &fakeCompleter{}
	session := connect(t, New(c, fakeModels{}, Config{DefaultModel: "claude-sonnet-4"}))

	res := callTool(t, session, "chat", map[string]any{
		"prompt":      "What is the capital of France?",
		"system":      "Answer briefly.",
		"max_tokens":  64,
		"temperature": 0.2,
	})
	if res.IsError {
		t.Fatalf("tool error: %s", text(t, res))
	}
	if got := text(t, res); got != "Paris." {
		t.Errorf("text = %q", got)
	}

	req := c.got
	if req.Model != "claude-sonnet-4" {
		t.Errorf("model = %q, want default model", req.Model)
	}
	if req.IsStream() {
		t.Error("chat tool must request a non-streaming completion")
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != api.RoleSystem || req.Messages[1].Role != api.RoleUser {
		t.Fatalf("messages = %+v", req.Messages)
	}
	if req.Messages[1].Content.PlainText() != "What is the capital of France?" {
		t.Errorf("prompt = %q", req.Messages[1].Content.PlainText())
	}
	if req.MaxTokens == nil || *req.MaxTokens != 64 {
		t.Errorf("max_tokens = %v", req.MaxTokens)
	}
	if req.Temperature == nil || *req.Temperature != 0.2 {
		t.Errorf("temperature = %v", req.Temperature)
	}

	structured, ok := res.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("structured content is %T", res.StructuredContent)
	}
	if structured["reasoning"] != "The capital of France." || structured["finish_reason"] != "stop" {
		t.Errorf("structured = %v", structured)
	}
}

func TestChatToolExplicitModel(t *testing.T) {
	c := &fakeCompleter{}
	session := connect(t, New(c, fakeModels{}, Config{DefaultModel: "claude-sonnet-4"}))

	callTool(t, session, "chat", map[string]any{"prompt": "hi", "model": "api/claude-opus-4"})
	if c.got.Model != "api/claude-opus-4" {
		t.Errorf("model = %q", c.got.Model)
	}
	if len(c.got.Messages) != 1 {
		t.Errorf("no system prompt expected, got %d messages", len(c.got.Messages))
	}
}

func TestChatToolErrors(t *testing.T) {
	t.Run("empty prompt", func(t *testing.T) {
		c := &fakeCompleter{}
		session := connect(t, New(c, fakeModels{}, Config{}))
		res := callTool(t, session, "chat", map[string]any{"prompt": ""})
		if !res.IsError {
			t.Error("expected tool error")
		}
		if c.got != nil {
			t.Error("completer must not be called")
		}
	})

	t.Run("upstream error", func(t *testing.T) {
		c := &fakeCompleter{err: api.NewUpstreamError(401, "authentication_error", "invalid x-api-key")}
		session := connect(t, New(c, fakeModels{}, Config{}))
		res := callTool(t, session, "chat", map[string]any{"prompt": "hi"})
		if !res.IsError {
			t.Fatal("expected tool error")
		}
		if got := text(t, res); got != "HTTP 401: invalid x-api-key (Type: authentication_error)" {
			t.Errorf("text = %q", got)
		}
	})
}

func TestListModelsTool(t *testing.T) {
	session := connect(t, New(&fakeCompleter{}, fakeModels{}, Config{}))

	res := callTool(t, session, "list_models", map[string]any{})
	if res.IsError {
		t.Fatalf("tool error: %s", text(t, res))
	}
	if got := text(t, res); got != "api/claude-sonnet-4\napi/claude-sonnet-4-thinking" {
		t.Errorf("text = %q", got)
	}
}

func TestListModelsToolError(t *testing.T) {
	session := connect(t, New(&fakeCompleter{}, fakeModels{err: errors.New("catalogue unavailable")}, Config{}))

	res := callTool(t, session, "list_models", map[string]any{})
	if !res.IsError || text(t, res) != "catalogue unavailable" {
		t.Errorf("result = %+v", res)
	}
}

func TestCompletionWriterRejectsStreaming(t *testing.T) {
	w := &completionWriter{}
	if err := w.WriteChunk(context.Background(), &api.ChatCompletionChunk{}); !errors.Is(err, errUnexpectedStream) {
		t.Errorf("WriteChunk err = %v", err)
	}
	if err := w.WriteDone(context.Background()); !errors.Is(err, errUnexpectedStream) {
		t.Errorf("WriteDone err = %v", err)
	}
}

func toolCalls(t *testing.T, tool, status string) float64 {
	t.Helper()
	var m dto.Metric
	if err := observability.MCPToolCallsTotal.WithLabelValues(tool, status).Write(&m); err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestToolCallMetrics(t *testing.T) {
	okBefore := toolCalls(t, "chat", "ok")
	errBefore := toolCalls(t, "list_models", "error")

	session := connect(t, New(&fakeCompleter{}, fakeModels{err: errors.New("down")}, Config{}))
	callTool(t, session, "chat", map[string]any{"prompt": "hi"})
	callTool(t, session, "list_models", map[string]any{})

	if got := toolCalls(t, "chat", "ok") - okBefore; got != 1 {
		t.Errorf("chat ok delta = %v, want 1", got)
	}
	if got := toolCalls(t, "list_models", "error") - errBefore; got != 1 {
		t.Errorf("list_models error delta = %v, want 1", got)
	}
}

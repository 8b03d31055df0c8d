package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rhuss/claudepipe/pkg/api"
)

// recordingWriter is a minimal ResponseWriter for testing middleware.
type recordingWriter struct {
	chunks     []*api.ChatCompletionChunk
	completion *api.ChatCompletion
	streamErr  *api.APIError
	done       bool
	flushed    bool
}

func (w *recordingWriter) WriteChunk(_ context.Context, c *api.ChatCompletionChunk) error {
	w.chunks = append(w.chunks, c)
	return nil
}

func (w *recordingWriter) WriteStreamError(_ context.Context, err *api.APIError) error {
	w.streamErr = err
	return nil
}

func (w *recordingWriter) WriteDone(context.Context) error {
	w.done = true
	return nil
}

func (w *recordingWriter) WriteCompletion(_ context.Context, resp *api.ChatCompletion) error {
	w.completion = resp
	return nil
}

func (w *recordingWriter) Flush() error {
	w.flushed = true
	return nil
}

func chatRequest(model string) *api.ChatCompletionRequest {
	return &api.ChatCompletionRequest{
		Model:    model,
		Messages: []api.ChatMessage{{Role: api.RoleUser, Content: api.TextContent("hi")}},
	}
}

func TestChainAppliesMiddlewareInOrder(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next ChatCompleter) ChatCompleter {
			return ChatCompleterFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
				order = append(order, name+":before")
				err := next.CreateChatCompletion(ctx, req, w)
				order = append(order, name+":after")
				return err
			})
		}
	}

	handler := ChatCompleterFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
		order = append(order, "handler")
		return nil
	})

	Chain(mw("first"), mw("second"), mw("third"))(handler).
		CreateChatCompletion(context.Background(), chatRequest("m"), &recordingWriter{})

	expected := []string{
		"first:before", "second:before", "third:before",
		"handler",
		"third:after", "second:after", "first:after",
	}
	if strings.Join(order, ",") != strings.Join(expected, ",") {
		t.Errorf("order = %v, want %v", order, expected)
	}
}

func TestRecoveryCatchesPanic(t *testing.T) {
	handler := ChatCompleterFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
		panic("test panic")
	})

	err := Recovery()(handler).CreateChatCompletion(context.Background(), chatRequest("m"), &recordingWriter{})

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %T: %v", err, err)
	}
	if apiErr.Type != api.ErrorTypeServerError {
		t.Errorf("error type = %q, want %q", apiErr.Type, api.ErrorTypeServerError)
	}
	if !strings.Contains(apiErr.Message, "test panic") {
		t.Errorf("error message = %q, should contain %q", apiErr.Message, "test panic")
	}
}

func TestRecoveryPassesThroughNormalExecution(t *testing.T) {
	handler := ChatCompleterFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
		return nil
	})
	if err := Recovery()(handler).CreateChatCompletion(context.Background(), chatRequest("m"), &recordingWriter{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestIDGeneratesUUID(t *testing.T) {
	var capturedID string
	handler := ChatCompleterFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
		capturedID = RequestIDFromContext(ctx)
		return nil
	})

	RequestID()(handler).CreateChatCompletion(context.Background(), chatRequest("m"), &recordingWriter{})

	if _, err := uuid.Parse(capturedID); err != nil {
		t.Errorf("request ID %q is not a UUID: %v", capturedID, err)
	}
}

func TestRequestIDPropagatesExisting(t *testing.T) {
	var capturedID string
	handler := ChatCompleterFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
		capturedID = RequestIDFromContext(ctx)
		return nil
	})

	ctx := ContextWithRequestID(context.Background(), "existing-id-123")
	RequestID()(handler).CreateChatCompletion(ctx, chatRequest("m"), &recordingWriter{})

	if capturedID != "existing-id-123" {
		t.Errorf("request ID = %q, want %q", capturedID, "existing-id-123")
	}
}

func TestRequestIDUniqueness(t *testing.T) {
	ids := make(map[string]bool)
	handler := ChatCompleterFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
		ids[RequestIDFromContext(ctx)] = true
		return nil
	})

	wrapped := RequestID()(handler)
	for range 100 {
		wrapped.CreateChatCompletion(context.Background(), chatRequest("m"), &recordingWriter{})
	}
	if len(ids) != 100 {
		t.Errorf("expected 100 unique IDs, got %d", len(ids))
	}
}

func TestLoggingEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := ChatCompleterFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
		return nil
	})

	ctx := ContextWithRequestID(context.Background(), "req-log-test")
	Logging(logger)(handler).CreateChatCompletion(ctx, chatRequest("claude-sonnet-4-0"), &recordingWriter{})

	output := buf.String()
	for _, expected := range []string{"request_id=req-log-test", "model=claude-sonnet-4-0", "stream=true", "messages=1", "chat completion finished"} {
		if !strings.Contains(output, expected) {
			t.Errorf("log output missing %q in:\n%s", expected, output)
		}
	}
}

func TestLoggingEmitsErrorOnFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := ChatCompleterFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
		return api.NewServerError("test failure")
	})

	Logging(logger)(handler).CreateChatCompletion(context.Background(), chatRequest("m"), &recordingWriter{})

	output := buf.String()
	if !strings.Contains(output, "chat completion failed") || !strings.Contains(output, "test failure") {
		t.Errorf("log output = %s", output)
	}
}

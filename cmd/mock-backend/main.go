// Command mock-backend runs a deterministic Anthropic Messages API server
// for local development and end-to-end tests of claudepipe. Point
// CLAUDEPIPE_BASE_URL at it.
//
// Behavior is selected by the last user message:
//
//	contains "RATE_LIMIT" - HTTP 429 with retry-after: 1 on every call
//	contains "FAIL"       - HTTP 500 api_error
//	contains "OVERLOADED" - streams one text delta, then an overloaded_error event
//	tools present         - a tool_use block calling the first tool
//	otherwise             - "Mock response to: <message>"
//
// Requests without x-api-key get HTTP 401. Thinking requests receive a
// thinking block before the answer.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
)

var requestCounter atomic.Int64

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", handleMessages)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock Anthropic backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Request types ---

type messagesRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    json.RawMessage `json:"system,omitempty"`
	Messages  []message       `json:"messages"`
	Tools     []tool          `json:"tools,omitempty"`
	Stream    bool            `json:"stream"`
	Thinking  *struct {
		Type         string `json:"type"`
		BudgetTokens int    `json:"budget_tokens"`
	} `json:"thinking,omitempty"`
}

type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type tool struct {
	Name string `json:"name"`
}

// lastUserText returns the text of the last user message.
func (r *messagesRequest) lastUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		m := r.Messages[i]
		if m.Role != "user" {
			continue
		}
		var s string
		if json.Unmarshal(m.Content, &s) == nil {
			return s
		}
		var blocks []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if json.Unmarshal(m.Content, &blocks) == nil {
			var b strings.Builder
			for _, bl := range blocks {
				if bl.Type == "text" {
					b.WriteString(bl.Text)
				}
			}
			return b.String()
		}
	}
	return ""
}

// --- Response plan ---

type block struct {
	kind  string // "thinking", "text" or "tool_use"
	text  string
	id    string
	name  string
	input string
}

func plan(req *messagesRequest, text string) []block {
	var blocks []block
	if req.Thinking != nil && req.Thinking.Type == "enabled" {
		blocks = append(blocks, block{kind: "thinking", text: "Considering the request."})
	}
	if len(req.Tools) > 0 {
		input, _ := json.Marshal(map[string]string{"query": text})
		blocks = append(blocks, block{
			kind:  "tool_use",
			id:    fmt.Sprintf("toolu_mock_%d", requestCounter.Load()),
			name:  req.Tools[0].Name,
			input: string(input),
		})
		return blocks
	}
	return append(blocks, block{kind: "text", text: "Mock response to: " + text})
}

func stopReason(blocks []block) string {
	for _, b := range blocks {
		if b.kind == "tool_use" {
			return "tool_use"
		}
	}
	return "end_turn"
}

// --- Handler ---

func handleMessages(w http.ResponseWriter, r *http.Request) {
	n := requestCounter.Add(1)
	reqID := fmt.Sprintf("req_mock_%06d", n)
	w.Header().Set("request-id", reqID)
	w.Header().Set("x-request-id", reqID)

	if r.Header.Get("x-api-key") == "" {
		writeError(w, http.StatusUnauthorized, "authentication_error", "x-api-key header is required")
		return
	}

	var req messagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body")
		return
	}
	if req.MaxTokens <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "max_tokens: field required")
		return
	}

	text := req.lastUserText()
	switch {
	case strings.Contains(text, "RATE_LIMIT"):
		w.Header().Set("retry-after", "1")
		writeError(w, http.StatusTooManyRequests, "rate_limit_error", "Number of request tokens has exceeded your per-minute rate limit")
		return
	case strings.Contains(text, "FAIL"):
		writeError(w, http.StatusInternalServerError, "api_error", "Internal server error")
		return
	}

	blocks := plan(&req, text)
	inputTokens := len(strings.Fields(text)) + 10
	outputTokens := 0
	for _, b := range blocks {
		outputTokens += len(strings.Fields(b.text)) + len(b.input)/4 + 1
	}

	if req.Stream {
		streamResponse(w, r, &req, blocks, inputTokens, outputTokens, strings.Contains(text, "OVERLOADED"))
		return
	}
	writeResponse(w, &req, blocks, inputTokens, outputTokens, n)
}

func writeError(w http.ResponseWriter, status int, typ, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"type":  "error",
		"error": map[string]string{"type": typ, "message": msg},
	})
}

func writeResponse(w http.ResponseWriter, req *messagesRequest, blocks []block, in, out int, n int64) {
	content := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		switch b.kind {
		case "thinking":
			content = append(content, map[string]any{"type": "thinking", "thinking": b.text, "signature": "mock"})
		case "text":
			content = append(content, map[string]any{"type": "text", "text": b.text})
		case "tool_use":
			content = append(content, map[string]any{"type": "tool_use", "id": b.id, "name": b.name, "input": json.RawMessage(b.input)})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":          fmt.Sprintf("msg_mock_%06d", n),
		"type":        "message",
		"role":        "assistant",
		"model":       req.Model,
		"content":     content,
		"stop_reason": stopReason(blocks),
		"usage":       map[string]int{"input_tokens": in, "output_tokens": out},
	})
}

func streamResponse(w http.ResponseWriter, r *http.Request, req *messagesRequest, blocks []block, in, out int, overload bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	send := func(event string, data any) bool {
		if r.Context().Err() != nil {
			return false
		}
		payload, _ := json.Marshal(data)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
		flusher.Flush()
		time.Sleep(5 * time.Millisecond)
		return true
	}

	send("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id": "msg_mock_stream", "type": "message", "role": "assistant", "model": req.Model,
			"content": []any{}, "usage": map[string]int{"input_tokens": in, "output_tokens": 1},
		},
	})
	send("ping", map[string]string{"type": "ping"})

	for i, b := range blocks {
		switch b.kind {
		case "thinking":
			send("content_block_start", map[string]any{"type": "content_block_start", "index": i,
				"content_block": map[string]string{"type": "thinking", "thinking": ""}})
			send("content_block_delta", map[string]any{"type": "content_block_delta", "index": i,
				"delta": map[string]string{"type": "thinking_delta", "thinking": b.text}})
		case "text":
			send("content_block_start", map[string]any{"type": "content_block_start", "index": i,
				"content_block": map[string]string{"type": "text", "text": ""}})
			for _, word := range strings.SplitAfter(b.text, " ") {
				if !send("content_block_delta", map[string]any{"type": "content_block_delta", "index": i,
					"delta": map[string]string{"type": "text_delta", "text": word}}) {
					return
				}
				if overload {
					send("error", map[string]any{"type": "error",
						"error": map[string]string{"type": "overloaded_error", "message": "Overloaded"}})
					return
				}
			}
		case "tool_use":
			send("content_block_start", map[string]any{"type": "content_block_start", "index": i,
				"content_block": map[string]any{"type": "tool_use", "id": b.id, "name": b.name, "input": map[string]any{}}})
			half := len(b.input) / 2
			for _, part := range []string{b.input[:half], b.input[half:]} {
				send("content_block_delta", map[string]any{"type": "content_block_delta", "index": i,
					"delta": map[string]string{"type": "input_json_delta", "partial_json": part}})
			}
		}
		send("content_block_stop", map[string]any{"type": "content_block_stop", "index": i})
	}

	send("message_delta", map[string]any{"type": "message_delta",
		"delta": map[string]string{"stop_reason": stopReason(blocks)},
		"usage": map[string]int{"output_tokens": out}})
	send("message_stop", map[string]string{"type": "message_stop"})
}

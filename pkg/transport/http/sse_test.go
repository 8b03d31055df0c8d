package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/claudepipe/pkg/api"
)

func testChunk(id, content string) *api.ChatCompletionChunk {
	return &api.ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: 1700000000,
		Model:   "claude-sonnet-4",
		Choices: []api.ChunkChoice{{Delta: api.ChunkDelta{Content: &content}}},
	}
}

func TestWriteCompletionJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newChunkWriter(rec, nil)

	content := "hi"
	resp := &api.ChatCompletion{
		ID:     "chatcmpl-abc",
		Object: "chat.completion",
		Model:  "claude-sonnet-4",
		Choices: []api.Choice{{
			Message:      api.ResponseMessage{Role: api.RoleAssistant, Content: &content},
			FinishReason: api.FinishReasonStop,
		}},
	}
	if err := cw.WriteCompletion(context.Background(), resp); err != nil {
		t.Fatalf("WriteCompletion error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var got api.ChatCompletion
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.ID != "chatcmpl-abc" || *got.Choices[0].Message.Content != "hi" {
		t.Errorf("unexpected completion: %+v", got)
	}
	if !cw.completed() {
		t.Error("writer should be completed")
	}
}

func TestWriteChunkFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newChunkWriter(rec, nil)

	if err := cw.WriteChunk(context.Background(), testChunk("chatcmpl-1", "Hel")); err != nil {
		t.Fatalf("WriteChunk error: %v", err)
	}
	if err := cw.WriteChunk(context.Background(), testChunk("chatcmpl-1", "lo")); err != nil {
		t.Fatalf("WriteChunk error: %v", err)
	}
	if err := cw.WriteDone(context.Background()); err != nil {
		t.Fatalf("WriteDone error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if v := rec.Header().Get("Cache-Control"); v != "no-cache" {
		t.Errorf("Cache-Control = %q", v)
	}

	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3: %q", len(frames), rec.Body.String())
	}
	for _, f := range frames[:2] {
		payload, ok := strings.CutPrefix(f, "data: ")
		if !ok {
			t.Fatalf("frame without data prefix: %q", f)
		}
		var c api.ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			t.Fatalf("frame is not a chunk: %v", err)
		}
		if c.Object != "chat.completion.chunk" {
			t.Errorf("object = %q", c.Object)
		}
	}
	if frames[2] != "data: [DONE]" {
		t.Errorf("last frame = %q, want data: [DONE]", frames[2])
	}
	if strings.Contains(rec.Body.String(), "event:") {
		t.Error("chunks must not carry event: lines")
	}
}

func TestWriteStreamErrorFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newChunkWriter(rec, nil)

	cw.WriteChunk(context.Background(), testChunk("chatcmpl-1", "x"))
	apiErr := api.NewTransportError("Stream error: Overloaded", false)
	if err := cw.WriteStreamError(context.Background(), apiErr); err != nil {
		t.Fatalf("WriteStreamError error: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasSuffix(body, `data: {"error":{"type":"transport_error","message":"Stream error: Overloaded"}}`+"\n\n") {
		t.Errorf("unexpected error frame: %q", body)
	}
	if strings.Contains(body, "[DONE]") {
		t.Error("error stream must not end with [DONE]")
	}
	if err := cw.WriteDone(context.Background()); err == nil {
		t.Error("WriteDone after stream error should fail")
	}
}

func TestWriteCompletionAfterStreamingFails(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newChunkWriter(rec, nil)

	cw.WriteChunk(context.Background(), testChunk("chatcmpl-1", "x"))
	if err := cw.WriteCompletion(context.Background(), &api.ChatCompletion{}); err == nil {
		t.Error("expected error writing a completion mid-stream")
	}
}

func TestWriteAfterDoneFails(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newChunkWriter(rec, nil)

	cw.WriteDone(context.Background())
	if err := cw.WriteChunk(context.Background(), testChunk("chatcmpl-1", "x")); err != errWriterCompleted {
		t.Errorf("err = %v, want errWriterCompleted", err)
	}
}

func TestOnFirstChunkCalledOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	var ids []string
	cw := newChunkWriter(rec, func(id string) { ids = append(ids, id) })

	cw.WriteChunk(context.Background(), testChunk("chatcmpl-first", "a"))
	cw.WriteChunk(context.Background(), testChunk("chatcmpl-first", "b"))

	if len(ids) != 1 || ids[0] != "chatcmpl-first" {
		t.Errorf("onFirstChunk calls = %v", ids)
	}
}

func TestWriterStates(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newChunkWriter(rec, nil)

	if cw.started() || cw.completed() {
		t.Fatal("new writer should be idle")
	}
	cw.WriteChunk(context.Background(), testChunk("chatcmpl-1", "a"))
	if !cw.started() || cw.completed() {
		t.Fatal("writer should be streaming")
	}
	cw.WriteDone(context.Background())
	if !cw.completed() {
		t.Fatal("writer should be completed")
	}
}

package anthropic

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rhuss/claudepipe/pkg/api"
	"github.com/rhuss/claudepipe/pkg/debug"
	"github.com/rhuss/claudepipe/pkg/observability"
	"github.com/rhuss/claudepipe/pkg/provider"
)

// Upstream SSE event types.
const (
	eventMessageStart      = "message_start"
	eventContentBlockStart = "content_block_start"
	eventContentBlockDelta = "content_block_delta"
	eventContentBlockStop  = "content_block_stop"
	eventMessageDelta      = "message_delta"
	eventMessageStop       = "message_stop"
	eventPing              = "ping"
	eventError             = "error"
)

// content_block_delta kinds.
const (
	deltaText      = "text_delta"
	deltaInputJSON = "input_json_delta"
	deltaThinking  = "thinking_delta"
	deltaCitations = "citations_delta"
)

// maxStreamLine bounds a single SSE line.
const maxStreamLine = 4 * 1024 * 1024

// toolCallAccumulator tracks one tool_use block while it streams. The
// argument fragments are forwarded as they arrive; args keeps the
// concatenation for logging once the block stops.
type toolCallAccumulator struct {
	id      string
	name    string
	ordinal int
	args    strings.Builder
}

// streamTranslator holds the per-stream state. Accumulators are keyed by
// the upstream content block index, so interleaved tool_use blocks stay
// apart. Ordinals are assigned in start order.
type streamTranslator struct {
	ctx     context.Context
	out     chan<- provider.StreamItem
	session *Session

	id      string
	model   string
	created int64

	tools       map[int64]*toolCallAccumulator
	nextOrdinal int
	sawToolCall bool

	usage      api.Usage
	stopReason string

	outcome StreamOutcome
}

// StreamOutcome reports how a translated stream ended.
type StreamOutcome struct {
	// Terminated is set once a [DONE] or error item has been delivered.
	Terminated bool

	// Usage is the accumulated token usage, set when message_stop was reached.
	Usage *api.Usage
}

// TranslateStream reads an Anthropic SSE body and sends OpenAI
// chat.completion.chunk items on out, ending with exactly one [DONE] item
// after message_stop. It returns after message_stop, an upstream error
// event, the end of the body, or ctx cancellation. out is not closed.
//
// Malformed lines are logged and skipped. A body that ends before
// message_stop yields one error item and no [DONE].
func TranslateStream(ctx context.Context, body io.Reader, model string, session *Session, out chan<- provider.StreamItem) StreamOutcome {
	if session == nil {
		session = NewSession()
	}
	t := &streamTranslator{
		ctx:     ctx,
		out:     out,
		session: session,
		id:      api.NewChatCompletionID(),
		model:   model,
		created: time.Now().Unix(),
		tools:   make(map[int64]*toolCallAccumulator),
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return t.outcome
		}

		// "event:" lines repeat the type carried in the data payload.
		payload, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" {
			continue
		}

		if t.handle(payload) {
			return t.outcome
		}
	}

	if ctx.Err() != nil {
		return t.outcome
	}
	if err := scanner.Err(); err != nil {
		t.terminate(provider.ErrorItem(session.Annotate(mapNetworkError(err))))
		return t.outcome
	}
	t.terminate(provider.ErrorItem(session.Annotate(
		api.NewTransportError("Stream error: upstream closed the stream before message_stop", false))))
	return t.outcome
}

// handle processes one data payload and reports whether the stream is over.
func (t *streamTranslator) handle(payload string) bool {
	if !gjson.Valid(payload) {
		slog.Warn("skipping malformed upstream SSE line",
			"data", debug.Truncate(payload, 200),
			"request_id", t.session.RequestID(),
		)
		observability.StreamSkippedLinesTotal.WithLabelValues(providerName).Inc()
		return false
	}
	debug.Trace("streaming", "upstream event", "data", payload)

	ev := gjson.Parse(payload)
	switch ev.Get("type").String() {
	case eventMessageStart:
		u := ev.Get("message.usage")
		t.usage.PromptTokens = int(u.Get("input_tokens").Int())
		t.usage.CompletionTokens = int(u.Get("output_tokens").Int())
		t.usage.CacheCreationInputTokens = int(u.Get("cache_creation_input_tokens").Int())
		t.usage.CacheReadInputTokens = int(u.Get("cache_read_input_tokens").Int())
		return !t.send(t.chunk(api.ChunkDelta{Role: api.RoleAssistant}, nil))

	case eventContentBlockStart:
		block := ev.Get("content_block")
		if block.Get("type").String() != blockToolUse {
			return false
		}
		acc := &toolCallAccumulator{
			id:      block.Get("id").String(),
			name:    block.Get("name").String(),
			ordinal: t.nextOrdinal,
		}
		if acc.id == "" {
			acc.id = fmt.Sprintf("call_%d", acc.ordinal)
		}
		t.nextOrdinal++
		t.tools[ev.Get("index").Int()] = acc
		t.sawToolCall = true

		debug.Log("streaming", "tool call started", "id", acc.id, "name", acc.name, "ordinal", acc.ordinal)
		name := acc.name
		return !t.send(t.chunk(api.ChunkDelta{ToolCalls: []api.ChunkToolCall{{
			Index:    acc.ordinal,
			ID:       acc.id,
			Type:     "function",
			Function: api.ChunkFunctionCall{Name: &name},
		}}}, nil))

	case eventContentBlockDelta:
		return t.handleDelta(ev.Get("index").Int(), ev.Get("delta"))

	case eventContentBlockStop:
		idx := ev.Get("index").Int()
		if acc, ok := t.tools[idx]; ok {
			debug.Log("streaming", "tool call complete",
				"id", acc.id,
				"name", acc.name,
				"arguments_bytes", acc.args.Len(),
				"arguments_valid", gjson.Valid(acc.args.String()),
			)
			delete(t.tools, idx)
		}
		return false

	case eventMessageDelta:
		if r := ev.Get("delta.stop_reason"); r.Exists() {
			t.stopReason = r.String()
		}
		u := ev.Get("usage")
		if v := u.Get("output_tokens"); v.Exists() {
			t.usage.CompletionTokens = int(v.Int())
		}
		if v := u.Get("input_tokens"); v.Exists() && v.Int() > 0 {
			t.usage.PromptTokens = int(v.Int())
		}
		return false

	case eventMessageStop:
		reason := api.FinishReasonStop
		if t.sawToolCall {
			reason = api.FinishReasonToolCalls
		}
		usage := t.usage
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		finish := t.chunk(api.ChunkDelta{}, &reason)
		finish.Chunk.Usage = &usage

		debug.Log("streaming", "message stop",
			"finish_reason", reason,
			"stop_reason", t.stopReason,
			"input_tokens", usage.PromptTokens,
			"output_tokens", usage.CompletionTokens,
		)
		t.outcome.Usage = &usage
		if t.send(finish) {
			t.terminate(provider.DoneItem())
		}
		return true

	case eventError:
		e := ev.Get("error")
		t.terminate(provider.ErrorItem(t.session.Annotate(
			streamError(e.Get("type").String(), e.Get("message").String()))))
		return true

	case eventPing:
		return false

	default:
		debug.Log("streaming", "ignoring upstream event", "type", ev.Get("type").String())
		return false
	}
}

// handleDelta processes a content_block_delta. Empty fragments are dropped.
func (t *streamTranslator) handleDelta(index int64, delta gjson.Result) bool {
	switch delta.Get("type").String() {
	case deltaText:
		text := delta.Get("text").String()
		if text == "" {
			return false
		}
		return !t.send(t.chunk(api.ChunkDelta{Content: &text}, nil))

	case deltaInputJSON:
		partial := delta.Get("partial_json").String()
		acc, ok := t.tools[index]
		if !ok || partial == "" {
			return false
		}
		acc.args.WriteString(partial)
		return !t.send(t.chunk(api.ChunkDelta{ToolCalls: []api.ChunkToolCall{{
			Index:    acc.ordinal,
			Function: api.ChunkFunctionCall{Arguments: partial},
		}}}, nil))

	case deltaThinking:
		thinking := delta.Get("thinking").String()
		if thinking == "" {
			return false
		}
		return !t.send(t.chunk(api.ChunkDelta{ReasoningContent: &thinking}, nil))

	case deltaCitations:
		c := delta.Get("citation")
		if !c.Exists() || !c.IsObject() {
			return false
		}
		marker := citationMarker(c.Get("document_index").Int(), c.Get("document_title").String())
		return !t.send(t.chunk(api.ChunkDelta{Content: &marker}, nil))
	}
	return false
}

// citationMarker renders " [index: title]" or " [index]" without a title.
func citationMarker(index int64, title string) string {
	if title != "" {
		return fmt.Sprintf(" [%d: %s]", index, title)
	}
	return fmt.Sprintf(" [%d]", index)
}

// chunk builds a chunk item sharing the stream's id, model and timestamp.
func (t *streamTranslator) chunk(delta api.ChunkDelta, finish *string) provider.StreamItem {
	return provider.ChunkItem(&api.ChatCompletionChunk{
		ID:      t.id,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
		Choices: []api.ChunkChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	})
}

// terminate sends the final item of the stream.
func (t *streamTranslator) terminate(item provider.StreamItem) {
	if t.send(item) {
		t.outcome.Terminated = true
	}
}

// send delivers an item unless the consumer has gone away.
func (t *streamTranslator) send(item provider.StreamItem) bool {
	select {
	case t.out <- item:
		return true
	case <-t.ctx.Done():
		return false
	}
}

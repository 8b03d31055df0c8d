package anthropic

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/rhuss/claudepipe/pkg/api"
)

// mapStopReason converts a Messages API stop_reason to an OpenAI finish_reason.
func mapStopReason(reason string) string {
	switch reason {
	case "max_tokens":
		return api.FinishReasonLength
	case "tool_use":
		return api.FinishReasonToolCalls
	default:
		return api.FinishReasonStop
	}
}

// translateResponse converts a non-streaming Messages API response into a
// chat.completion. Text blocks are joined, thinking blocks become
// reasoning_content, and tool_use blocks become tool_calls.
func translateResponse(resp *MessagesResponse, model string) *api.ChatCompletion {
	var text, reasoning strings.Builder
	var toolCalls []api.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case blockText:
			text.WriteString(block.Text)
		case blockThinking:
			reasoning.WriteString(block.Thinking)
		case blockToolUse:
			args := string(block.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			toolCalls = append(toolCalls, api.ToolCall{
				ID:       block.ID,
				Type:     "function",
				Function: api.FunctionCall{Name: block.Name, Arguments: compactJSON(args)},
			})
		}
	}

	content := text.String()
	msg := api.ResponseMessage{
		Role:             api.RoleAssistant,
		Content:          &content,
		ReasoningContent: reasoning.String(),
		ToolCalls:        toolCalls,
	}

	if resp.Model != "" {
		model = resp.Model
	}

	return &api.ChatCompletion{
		ID:      api.NewChatCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []api.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: mapStopReason(resp.StopReason),
		}},
		Usage: &api.Usage{
			PromptTokens:             resp.Usage.InputTokens,
			CompletionTokens:         resp.Usage.OutputTokens,
			TotalTokens:              resp.Usage.InputTokens + resp.Usage.OutputTokens,
			CacheCreationInputTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     resp.Usage.CacheReadInputTokens,
		},
	}
}

func compactJSON(s string) string {
	var b bytes.Buffer
	if err := json.Compact(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}

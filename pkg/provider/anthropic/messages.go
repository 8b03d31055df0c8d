package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/rhuss/claudepipe/pkg/api"
)

// splitSystem returns the text of the first system message and the
// conversation with every system message removed.
func splitSystem(messages []api.ChatMessage) (string, []api.ChatMessage) {
	var system string
	found := false
	rest := make([]api.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == api.RoleSystem {
			if !found {
				system = m.Content.PlainText()
				found = true
			}
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

// convertMessages maps OpenAI messages onto Messages API turns.
//
// Consecutive tool messages are batched into one user turn of tool_result
// blocks. Assistant tool_calls become tool_use blocks after any text. User
// turns with no content are dropped; assistant turns never are.
func convertMessages(messages []api.ChatMessage) ([]Message, *api.APIError) {
	out := make([]Message, 0, len(messages))
	var pending []ContentBlock

	flush := func() {
		if len(pending) > 0 {
			out = append(out, Message{Role: string(api.RoleUser), Content: pending})
			pending = nil
		}
	}

	for _, msg := range messages {
		if msg.Role == api.RoleTool {
			pending = append(pending, ContentBlock{
				Type:      blockToolResult,
				ToolUseID: msg.ToolCallID,
				Content:   normalizeToolResult(toolResultText(msg.Content)),
			})
			continue
		}
		flush()

		if msg.Role == api.RoleAssistant && len(msg.ToolCalls) > 0 {
			var blocks []ContentBlock
			for _, p := range msg.Parts() {
				if p.Type == api.PartText {
					blocks = append(blocks, textBlock(p.Text))
				}
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, ContentBlock{
					Type:  blockToolUse,
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: toolInput(tc.Function.Arguments),
				})
			}
			out = append(out, Message{Role: string(api.RoleAssistant), Content: blocks})
			continue
		}

		blocks, err := convertParts(msg.Parts())
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			if msg.Role != api.RoleAssistant {
				continue
			}
			blocks = []ContentBlock{textBlock("")}
		}
		out = append(out, Message{Role: string(msg.Role), Content: blocks})
	}
	flush()

	return out, nil
}

// convertParts maps content parts onto blocks. Unknown part types are dropped.
func convertParts(parts []api.ContentPart) ([]ContentBlock, *api.APIError) {
	blocks := make([]ContentBlock, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case api.PartText:
			b := textBlock(p.Text)
			b.CacheControl = p.CacheControl
			blocks = append(blocks, b)

		case api.PartImageURL:
			b, err := imageBlock(p)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, b)

		case api.PartPDFURL:
			b, err := pdfBlock(p)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, b)

		case api.PartDocument:
			b := ContentBlock{
				Type:         blockDocument,
				Source:       p.Source,
				Title:        p.Title,
				Context:      p.Context,
				CacheControl: p.CacheControl,
			}
			if p.Citations != nil && p.Citations.Enabled {
				b.Citations = &api.CitationsConfig{Enabled: true}
			}
			blocks = append(blocks, b)

		case api.PartFileReference:
			if p.FileID == "" {
				continue
			}
			blocks = append(blocks, ContentBlock{
				Type:   blockDocument,
				Source: rawSource(Source{Type: "file", FileID: p.FileID}),
			})
		}
	}
	return blocks, nil
}

// toolInput parses tool call arguments. Anything that is not a JSON object
// is wrapped as {"raw": "<arguments>"}.
func toolInput(args string) json.RawMessage {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" {
		return json.RawMessage(`{}`)
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil && obj != nil {
		return json.RawMessage(trimmed)
	}
	data, _ := json.Marshal(map[string]string{"raw": args})
	return data
}

// toolResultText flattens tool message content. Lists of text parts are
// joined; other lists are sent as their JSON encoding.
func toolResultText(c api.MessageContent) string {
	if c.Text != nil || c.Parts == nil {
		return c.PlainText()
	}
	for _, p := range c.Parts {
		if p.Type != api.PartText {
			data, _ := json.Marshal(c.Parts)
			return string(data)
		}
	}
	return c.PlainText()
}

var escapeReplacer = strings.NewReplacer(
	`\n`, "\n",
	`\t`, "\t",
	`\r`, "\r",
	`\"`, `"`,
	`\'`, `'`,
)

// normalizeToolResult undoes one level of JSON string encoding that tools
// commonly apply to formatted text, so newlines reach the model as real
// newlines.
func normalizeToolResult(s string) string {
	if s == "" {
		return ""
	}
	trimmed := strings.TrimSpace(s)
	if len(trimmed) > 1 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		var unquoted string
		if err := json.Unmarshal([]byte(trimmed), &unquoted); err == nil {
			return unquoted
		}
	}
	if strings.Contains(s, `\n`) {
		return escapeReplacer.Replace(s)
	}
	return s
}

package api

import "fmt"

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessages int
	MaxTools    int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessages: 1000,
		MaxTools:    128,
	}
}

// ValidateChatRequest checks the shape of a chat completion request. Media
// limits are enforced later by the request builder, which knows the vendor
// ceilings. It returns the first violation found, or nil.
func ValidateChatRequest(req *ChatCompletionRequest, cfg ValidationConfig) *APIError {
	if req.Model == "" {
		return NewInvalidRequestError("model", "model is required")
	}

	if len(req.Messages) == 0 {
		return NewInvalidRequestError("messages", "messages must contain at least one message")
	}

	if cfg.MaxMessages > 0 && len(req.Messages) > cfg.MaxMessages {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("messages exceeds maximum of %d", cfg.MaxMessages))
	}

	if cfg.MaxTools > 0 && len(req.Tools) > cfg.MaxTools {
		return NewInvalidRequestError("tools",
			fmt.Sprintf("tools exceeds maximum of %d", cfg.MaxTools))
	}

	for i, msg := range req.Messages {
		param := fmt.Sprintf("messages[%d]", i)
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		case RoleTool:
			if msg.ToolCallID == "" {
				return NewInvalidRequestError(param+".tool_call_id", "tool messages require tool_call_id")
			}
		default:
			return NewInvalidRequestError(param+".role", fmt.Sprintf("unknown role %q", msg.Role))
		}
		for j, part := range msg.Content.Parts {
			if part.Type == "" {
				return NewInvalidRequestError(fmt.Sprintf("%s.content[%d].type", param, j), "content part type is required")
			}
		}
	}

	if req.MaxTokens != nil && *req.MaxTokens < 0 {
		return NewInvalidRequestError("max_tokens", "max_tokens must not be negative")
	}

	if req.Temperature != nil {
		if *req.Temperature < 0.0 || *req.Temperature > 1.0 {
			return NewInvalidRequestError("temperature", "temperature must be between 0.0 and 1.0")
		}
	}

	if req.TopP != nil {
		if *req.TopP < 0.0 || *req.TopP > 1.0 {
			return NewInvalidRequestError("top_p", "top_p must be between 0.0 and 1.0")
		}
	}

	if req.TopK != nil && *req.TopK < 0 {
		return NewInvalidRequestError("top_k", "top_k must not be negative")
	}

	// A forced function must be among the declared tools.
	if req.ToolChoice != nil && req.ToolChoice.Function != nil {
		name := req.ToolChoice.Function.Function.Name
		found := false
		for _, tool := range req.Tools {
			if tool.Function.Name == name {
				found = true
				break
			}
		}
		if !found {
			return NewInvalidRequestError("tool_choice",
				fmt.Sprintf("tool_choice references unknown tool %q", name))
		}
	}

	if req.ToolChoice != nil && req.ToolChoice.String != "" {
		switch req.ToolChoice.String {
		case "none", "auto", "required":
		default:
			return NewInvalidRequestError("tool_choice",
				fmt.Sprintf("tool_choice must be \"none\", \"auto\" or \"required\", got %q", req.ToolChoice.String))
		}
	}

	return nil
}

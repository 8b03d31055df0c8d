// Package provider defines the interface for upstream LLM vendors. An
// adapter (see the anthropic subpackage) accepts the gateway's OpenAI-style
// request, speaks its vendor protocol, and hands back either a complete
// chat.completion or a channel of translated stream items.
package provider

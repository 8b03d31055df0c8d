// Package transport defines the handler contract and middleware chain for
// the claudepipe HTTP/SSE front end.
//
// The transport layer decodes OpenAI Chat Completions requests into the
// types of pkg/api, hands them to a [ChatCompleter], and serializes the
// result as a single JSON body or as a server-sent event stream of
// chat.completion.chunk objects terminated by "data: [DONE]".
//
// # Handler Interfaces
//
//   - ChatCompleter performs one chat completion and writes the outcome to
//     a ResponseWriter.
//   - ModelLister lists the models the gateway serves.
//
// The usage ledger used by GET /v1/usage is storage.UsageStore.
//
// # Middleware
//
// The middleware chain wraps a ChatCompleter with panic recovery, request
// ID assignment (X-Request-ID) and structured logging via log/slog.
package transport

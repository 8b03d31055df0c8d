// Package api defines the client-facing protocol types for the claudepipe
// gateway.
//
// The gateway speaks the OpenAI Chat Completions wire format towards its
// clients: [ChatCompletionRequest] in, and either a [ChatCompletion] or a
// stream of [ChatCompletionChunk] values out. Message content is a string
// or a list of tagged [ContentPart] values (text, image_url, pdf_url,
// document, file_reference); [MessageContent] preserves which form was used.
//
// Errors are reported as [APIError] values drawn from a closed set of kinds
// (configuration, invalid request, transport, upstream, rate limit, not
// found, server). Every failure path returns one of these instead of
// propagating a raw error to the client.
//
// The package has no external dependencies and performs no I/O.
package api

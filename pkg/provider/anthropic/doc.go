// Package anthropic implements provider.Provider on top of Anthropic's
// Messages API.
//
// A call goes through three stages:
//
//   - The [Builder] turns an OpenAI-style chat request into a Messages API
//     payload plus headers. It resolves "-thinking" model aliases, clamps
//     max_tokens to the model ceiling, converts tools, tool messages and
//     media parts, validates media sizes, and computes anthropic-beta flags.
//   - Streaming calls feed the upstream SSE body through [TranslateStream],
//     which re-emits OpenAI chat.completion.chunk values and a final
//     [DONE] marker.
//   - Non-streaming calls are sent with up to three attempts, sleeping on
//     HTTP 429 for retry-after (or an exponential delay) between attempts.
//
// Every failure surfaces as an *api.APIError. Per-call state, such as the
// upstream request id used to enrich error messages, lives in a [Session]
// and is never shared between requests.
package anthropic

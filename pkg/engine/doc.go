// Package engine connects the HTTP transport to a provider. The Engine
// implements transport.ChatCompleter: it validates the request, dispatches
// it to the provider's Complete or Stream path, relays the result to the
// transport's ResponseWriter, and records token usage in the ledger when
// one is configured.
package engine

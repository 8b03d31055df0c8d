// Package auth authenticates inbound chat requests.
//
// Authenticators vote Yes, No or Abstain on a request; an AuthChain asks
// them in order and falls back to a default decision when all abstain.
// Middleware runs the chain, applies the per-tier rate limiter and puts
// the caller's identity and tenant into the request context, so usage
// records are scoped per tenant.
package auth

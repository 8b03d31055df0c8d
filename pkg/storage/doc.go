// Package storage defines the usage ledger: one [UsageRecord] per completed
// chat completion, and the [UsageStore] interface implemented by the memory
// and postgres adapters.
//
// Records are scoped by tenant. The tenant is read from the request context
// (see [SetTenant]); an empty tenant means single-tenant mode and matches
// every record.
package storage

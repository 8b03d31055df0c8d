// Package apikey authenticates callers by static API keys. Keys are kept
// only as SHA-256 hashes and compared in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/rhuss/claudepipe/pkg/auth"
)

// RawKeyEntry binds a plaintext key to the identity it grants.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

type keyEntry struct {
	hash     [sha256.Size]byte
	identity auth.Identity
}

// Authenticator matches bearer tokens, or the x-api-key header used by
// Anthropic clients, against the configured keys.
type Authenticator struct {
	keys []keyEntry
}

// New hashes the given keys. Entries with an empty key are skipped.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		a.keys = append(a.keys, keyEntry{hash: sha256.Sum256([]byte(e.Key)), identity: e.Identity})
	}
	return a
}

// Len returns the number of configured keys.
func (a *Authenticator) Len() int { return len(a.keys) }

// Authenticate abstains when the request carries no key at all.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	key, ok := auth.BearerToken(r)
	if !ok {
		key = r.Header.Get("x-api-key")
		if key == "" {
			return auth.AuthResult{Decision: auth.Abstain}
		}
	}
	if key == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	h := sha256.Sum256([]byte(key))
	match := -1
	for i := range a.keys {
		// Every entry is compared so timing does not reveal the position.
		if subtle.ConstantTimeCompare(h[:], a.keys[i].hash[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	id := a.keys[match].identity
	if id.Metadata != nil {
		md := make(map[string]string, len(id.Metadata))
		for k, v := range id.Metadata {
			md[k] = v
		}
		id.Metadata = md
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}

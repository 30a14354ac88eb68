// Package respcache caches final model answers keyed by a fingerprint of
// the user query and its auxiliary case context. It is a best-effort
// layer: every failure degrades to a cache miss, never to a request
// failure.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// keyPrefix namespaces cache keys in shared backends.
const keyPrefix = "legalrag:answer:"

// Cache stores generated answers for identical (query, case context)
// pairs.
type Cache interface {
	// Get returns the cached answer for key, or ok=false on a miss.
	Get(ctx context.Context, key string) (answer string, ok bool)

	// Set stores answer under key, evicting older entries if needed.
	Set(ctx context.Context, key, answer string)

	// Close releases backend resources.
	Close() error
}

// Fingerprint derives the cache key for a query and its auxiliary case
// context. Whitespace and letter case do not change the answer, so they
// do not change the key.
func Fingerprint(query, caseContext string) string {
	payload := strings.ToLower(strings.TrimSpace(query+"|"+caseContext))
	sum := sha256.Sum256([]byte(payload))
	return keyPrefix + hex.EncodeToString(sum[:])
}

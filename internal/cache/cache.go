// Package cache provides the short-lived idempotency marker store used by the
// mutation endpoints. A marker is claimed with insert-if-absent semantics so
// that exactly one of several concurrent requests carrying the same key wins.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// KeyCache is an ephemeral key-value store with TTL.
//
// Claim stores key if absent and reports whether this caller inserted it.
// Release removes a claim so a failed attempt can be retried with the same
// key. Implementations must be safe for concurrent use.
type KeyCache interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// MarkerKey builds the cache key for an idempotency marker. The parts (user,
// target id, client key) are hashed so arbitrary client input never reaches
// the cache keyspace verbatim.
func MarkerKey(kind string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "pg:" + kind + ":" + hex.EncodeToString(sum[:])
}

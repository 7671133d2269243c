package kv

import "context"

// KV is the persistence substrate contract: independent, non-transactional
// get/put per key. There is no atomic increment and no multi-key transaction;
// callers that read-modify-write must serialize access themselves.
// All implementations must be safe for concurrent use.
type KV interface {
	// Get returns the value for key. The second return is false when the key
	// is absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores value under key, overwriting any prior value.
	Put(ctx context.Context, key, value string) error

	// Keys returns all keys with the given prefix, sorted ascending.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases underlying resources.
	Close() error
}

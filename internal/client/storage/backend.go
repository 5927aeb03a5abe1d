// Package storage persists opaque serialized values across two physical
// backends: a size-constrained secure store and an unconstrained bulk store.
//
// The Adapter writes small values inline into the secure backend. Values whose
// serialized size exceeds the inline threshold are written to the bulk backend
// under BulkKey(key), and the secure backend keeps an indirection marker that
// points at them. Backend failures are logged and reported to readers as a
// cache miss.
package storage

import "context"

// Backend is a key to bytes store.
//
// Get returns (nil, nil) when the key does not exist.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists the stored keys that start with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

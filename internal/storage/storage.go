// Package storage defines the key/value store used for cached lookups.
package storage

import "context"

// Store is a minimal key/value store. Get reports absent keys with
// ok=false and a nil error. Put overwrites (last write wins).
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
}

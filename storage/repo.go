package storage

import "context"

// Repo is the durable key/value contract the credential store is written
// against. Values are opaque strings. Implementations must treat deleting a
// missing key as success.
type Repo interface {
	// Get returns the value for key and whether it was present
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes every pair in values. Backends that can do so write them together.
	Set(ctx context.Context, values map[string]string) error

	// Delete removes the given keys, ignoring ones that do not exist
	Delete(ctx context.Context, keys ...string) error

	// Close releases any underlying handle
	Close() error
}

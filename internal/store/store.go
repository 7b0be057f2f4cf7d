// Package store is the shared-state boundary: a key/value store with
// scan-by-prefix and publish/subscribe. All durable engine state lives behind
// this interface; other processes read and write the same keys, so values are
// treated as eventually consistent.
package store

import "context"

type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Keys returns all keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Publish(ctx context.Context, channel, message string) error
	// Subscribe delivers messages for channel until ctx is cancelled. The
	// returned channel is closed on cancellation.
	Subscribe(ctx context.Context, channel string) (<-chan string, error)
	Close() error
}

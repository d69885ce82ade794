// Package persistence holds the durable key/value stores that back client
// session state. Backends live in subpackages; this package carries the
// shared contract and the encrypting wrapper.
package persistence

import "context"

// KeyValueStore is single-key durable storage. A missing key reads as
// ok == false with a nil error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

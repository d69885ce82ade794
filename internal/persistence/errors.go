package persistence

import "errors"

var (
	// ErrCorrupt is returned when a stored value cannot be decoded or authenticated.
	ErrCorrupt = errors.New("persistence: corrupt value")

	// ErrReservedKey is returned when a caller addresses a key the store uses internally.
	ErrReservedKey = errors.New("persistence: reserved key")
)

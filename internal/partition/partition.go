// Package partition stores serialized carts, one payload per principal, under deterministic keys.
package partition

import (
	"context"
	"errors"
)

// DefaultPrefix is prepended to every partition key unless configured otherwise.
const DefaultPrefix = "cart:"

const (
	guestKey   = "guest"
	userPrefix = "user:"
)

// ErrNotFound is returned by Load when nothing is stored under the key.
var ErrNotFound = errors.New("partition not found")

// Key derives the partition key of a principal. The guest principal (empty id) has its own key that no user id
// can produce.
func Key(prefix, principalID string) string {
	if principalID == "" {
		return prefix + guestKey
	}
	return prefix + userPrefix + principalID
}

// Store is a key/value store for partition payloads.
// Save overwrites the whole payload; there is no partial update.
type Store interface {
	// Load returns the payload stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save stores payload under key, replacing what was there.
	Save(ctx context.Context, key string, payload []byte) error
}

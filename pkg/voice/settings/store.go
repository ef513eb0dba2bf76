// Package settings owns the durable voice settings: wake configuration,
// voice parameters, and the auto-send flag. Values live in a string-keyed
// store; the typed layer on top applies defaults, clamps ranges, and
// publishes the complete changed config subset on every write.
package settings

import "errors"

// ErrNotFound is returned by Store.Get when a key has never been written.
var ErrNotFound = errors.New("settings: not found")

// Store is a minimal durable string-keyed store. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the stored value, or ErrNotFound.
	Get(key string) (string, error)

	// Set stores a value, overwriting any previous one.
	Set(key, value string) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error

	// Close releases the underlying resources.
	Close() error
}

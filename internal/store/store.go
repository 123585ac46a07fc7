// Package store provides the local key-value state used to persist chat
// transcripts, session ids and auth scalars. Access is synchronous and
// atomic at single-key granularity; there are no cross-key transactions.
package store

// Store is the key-value contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool)
	// Set writes key to value, overwriting any previous value.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
	// Keys returns every stored key, in no particular order.
	Keys() ([]string, error)
	// RemoveByPrefix deletes every key starting with prefix.
	RemoveByPrefix(prefix string) error
}

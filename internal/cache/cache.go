// Package cache holds small in-process caches for computed read models.
package cache

// Cache is a keyed store of computed values.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	// Purge drops every entry.
	Purge()
	Len() int
}

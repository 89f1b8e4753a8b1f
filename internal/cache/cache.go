// Package cache provides a bounded in-process cache with per-entry expiry.
package cache

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// Clear drops every entry.
	Clear()
	Size() int
}

var _ Cache[int] = (*LRUCache[int])(nil)

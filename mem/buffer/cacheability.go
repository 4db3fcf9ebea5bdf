package buffer

import "errors"

// ErrCacheabilityUnsupported is returned by controllers that cannot change the
// memory type of a buffer.
var ErrCacheabilityUnsupported = errors.New(
	"changing the cacheability of user pages is not supported on this host")

// State is whatever a controller needs to undo a cacheability change.
type State any

// A CacheabilityController marks buffers as uncacheable and back.
type CacheabilityController interface {
	SetUncacheable(b *Buffer) (State, error)
	Restore(b *Buffer, s State) error
}

// UnsupportedCacheability is the controller used when the host offers no way
// to rewrite page table attributes from user space.
type UnsupportedCacheability struct{}

// SetUncacheable always fails.
func (UnsupportedCacheability) SetUncacheable(*Buffer) (State, error) {
	return nil, ErrCacheabilityUnsupported
}

// Restore does nothing.
func (UnsupportedCacheability) Restore(*Buffer, State) error {
	return nil
}

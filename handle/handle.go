// Package handle gives opaque driver objects a comparable identity.
//
// GPU objects returned by a device (buffers, texture views, samplers,
// layouts, pipelines) are interfaces with no meaningful equality. A Handle
// pairs such an object with an integer id that is unique among handles of
// the same Go type; every cache in gpucache keys on that id.
//
// Ownership: New returns a handle holding one reference. Copying the Handle
// value borrows it. Clone takes another reference, and Release drops one;
// when the last reference goes the optional release function runs. Dropping
// one clone never invalidates another live clone.
package handle

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

type shared[T any] struct {
	value   T
	refs    atomic.Int32
	release func(T)
}

// Handle is a shared reference to a driver object plus its identity.
// The zero Handle is invalid and has id 0.
type Handle[T any] struct {
	s  *shared[T]
	id uint64
}

// New wraps value and assigns the next id for T.
func New[T any](value T) Handle[T] {
	return NewWithRelease(value, nil)
}

// NewWithRelease is like New, but release is called with the value once
// the last reference has been released.
func NewWithRelease[T any](value T, release func(T)) Handle[T] {
	s := &shared[T]{value: value, release: release}
	s.refs.Store(1)
	return Handle[T]{s: s, id: nextID[T]()}
}

// ID returns the handle's identity. Stable for the handle's lifetime and
// preserved by Clone.
func (h Handle[T]) ID() uint64 { return h.id }

// Value returns the wrapped object, or the zero T for an invalid handle.
func (h Handle[T]) Value() T {
	if h.s == nil {
		var zero T
		return zero
	}
	return h.s.value
}

// IsValid reports whether h wraps an object.
func (h Handle[T]) IsValid() bool { return h.s != nil }

// Clone takes a new reference to the same object. O(1).
func (h Handle[T]) Clone() Handle[T] {
	if h.s != nil {
		h.s.refs.Add(1)
	}
	return h
}

// Release drops one reference. It reports whether this call released the
// last one. Releasing more references than were taken panics.
func (h Handle[T]) Release() bool {
	if h.s == nil {
		return false
	}
	n := h.s.refs.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("handle: %s released more times than retained", h))
	}
	if n > 0 {
		return false
	}
	if h.s.release != nil {
		h.s.release(h.s.value)
	}
	return true
}

// Refs returns the current reference count.
func (h Handle[T]) Refs() int32 {
	if h.s == nil {
		return 0
	}
	return h.s.refs.Load()
}

// Equal compares by id only.
func (h Handle[T]) Equal(other Handle[T]) bool { return h.id == other.id }

// String implements fmt.Stringer.
func (h Handle[T]) String() string {
	return fmt.Sprintf("Handle[%s]#%d", reflect.TypeFor[T](), h.id)
}

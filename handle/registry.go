package handle

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// registry holds one id counter per Go type. Counters are created lazily on
// first use of a type and never removed.
var registry = struct {
	mu       sync.RWMutex
	counters map[reflect.Type]*atomic.Uint64
}{
	counters: make(map[reflect.Type]*atomic.Uint64),
}

// counterFor returns the counter for T, creating it if needed.
//
// Fast path takes the read lock only; the slow path double-checks under
// the write lock so two goroutines racing on a new type share one counter.
func counterFor[T any]() *atomic.Uint64 {
	t := reflect.TypeFor[T]()

	registry.mu.RLock()
	c, ok := registry.counters[t]
	registry.mu.RUnlock()
	if ok {
		return c
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if c, ok = registry.counters[t]; ok {
		return c
	}
	c = new(atomic.Uint64)
	registry.counters[t] = c
	return c
}

// nextID returns the next id for T. The first id of every type is 1, so
// the zero Handle never collides with a live one.
func nextID[T any]() uint64 {
	return counterFor[T]().Add(1)
}

// Issued reports how many ids have been assigned to handles of type T.
func Issued[T any]() uint64 {
	return counterFor[T]().Load()
}

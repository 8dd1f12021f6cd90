// Package bindgroup deduplicates bind groups and bind group layouts.
//
// Layouts are keyed by shape (visibility, binding kind, buffer type) and
// groups by the identity of the bound resources. Builders accumulate both
// the device descriptors and the keys; Create resolves them through a
// Cache, constructing objects only on a miss.
//
// Keys are positional: the binding index of an entry is its insertion
// order and entries are never sorted. Building the same set in a different
// order yields a separate cache entry.
//
//	group, layout, err := bindgroup.NewGroup().
//	    DynamicBuffer(alloc, bindgroup.StageVertex, bindgroup.BufferUniform).
//	    Image(view, bindgroup.StageFragment).
//	    Sampler(sampler, bindgroup.StageFragment).
//	    Create(device, cache)
package bindgroup

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/handle"
)

// Bind group errors.
var (
	// ErrNilDevice is returned when creating objects without a device.
	ErrNilDevice = errors.New("bindgroup: device is nil")

	// ErrNilCache is returned by Create when the cache is nil.
	ErrNilCache = errors.New("bindgroup: cache is nil")

	// ErrInvalidHandle is returned when a builder was given a zero handle.
	ErrInvalidHandle = errors.New("bindgroup: invalid resource handle")

	// ErrDestroyed is returned when using a cache after Destroy.
	ErrDestroyed = errors.New("bindgroup: cache destroyed")
)

// Device is the part of a GPU device the bind group cache needs.
// hal.Device satisfies it.
type Device interface {
	CreateBindGroupLayout(desc *hal.BindGroupLayoutDescriptor) (hal.BindGroupLayout, error)
	DestroyBindGroupLayout(layout hal.BindGroupLayout)
	CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error)
	DestroyBindGroup(group hal.BindGroup)
}

// Cache holds every bind group and layout created through it. Entries are
// never evicted. A Cache is not safe for concurrent use.
type Cache struct {
	layouts map[string]handle.Handle[hal.BindGroupLayout]
	groups  map[string]handle.Handle[hal.BindGroup]

	layoutHits, layoutMisses uint64
	groupHits, groupMisses   uint64

	destroyed bool
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		layouts: make(map[string]handle.Handle[hal.BindGroupLayout]),
		groups:  make(map[string]handle.Handle[hal.BindGroup]),
	}
}

func (c *Cache) usable(device Device) error {
	if c == nil {
		return ErrNilCache
	}
	if c.destroyed {
		return ErrDestroyed
	}
	if device == nil {
		return ErrNilDevice
	}
	return nil
}

// LayoutCount returns the number of cached layouts.
func (c *Cache) LayoutCount() int { return len(c.layouts) }

// GroupCount returns the number of cached groups.
func (c *Cache) GroupCount() int { return len(c.groups) }

// Stats describes cache activity.
type Stats struct {
	Layouts      int
	Groups       int
	LayoutHits   uint64
	LayoutMisses uint64
	GroupHits    uint64
	GroupMisses  uint64
}

// HitRate returns the combined hit rate (0.0 to 1.0), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	hits := s.LayoutHits + s.GroupHits
	total := hits + s.LayoutMisses + s.GroupMisses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("BindGroups[%d layouts, %d groups, %.1f%% hits]",
		s.Layouts, s.Groups, s.HitRate()*100)
}

// Stats returns current statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Layouts:      len(c.layouts),
		Groups:       len(c.groups),
		LayoutHits:   c.layoutHits,
		LayoutMisses: c.layoutMisses,
		GroupHits:    c.groupHits,
		GroupMisses:  c.groupMisses,
	}
}

// Destroy releases the cache's reference to every group, then every
// layout. Objects still cloned by callers survive until those clones are
// released. Safe to call more than once.
func (c *Cache) Destroy() {
	if c.destroyed {
		return
	}
	for key, g := range c.groups {
		g.Release()
		delete(c.groups, key)
	}
	for key, l := range c.layouts {
		l.Release()
		delete(c.layouts, key)
	}
	c.destroyed = true
}

package bindgroup

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/arena"
	"github.com/gogpu/gpucache/handle"
	"github.com/gogpu/gpucache/internal/keyenc"
	"github.com/gogpu/gpucache/internal/logging"
)

// GroupBuilder accumulates concrete resources for a bind group and, in
// step, the matching layout.
//
// The cache key is the identity of every bound resource (handle id plus
// offset and size for buffers) in insertion order, together with the id of
// the resolved layout. Binding the same resources in a different order
// produces a different group.
type GroupBuilder struct {
	label   string
	layout  *LayoutBuilder
	entries []gputypes.BindGroupEntry
	key     keyenc.Builder
	err     error
}

// NewGroup returns an empty group builder.
func NewGroup() *GroupBuilder {
	return &GroupBuilder{layout: NewLayout()}
}

// Label sets the debug label for the group and its layout. Not part of
// either key.
func (b *GroupBuilder) Label(label string) *GroupBuilder {
	b.label = label
	b.layout.Label(label + "_layout")
	return b
}

// Seed forwards to the layout builder.
func (b *GroupBuilder) Seed(seed string) *GroupBuilder {
	b.layout.Seed(seed)
	return b
}

// Buffer binds size bytes of buf starting at offset. A size of zero binds
// the rest of the buffer.
func (b *GroupBuilder) Buffer(
	buf handle.Handle[hal.Buffer],
	offset, size uint64,
	stages Stages,
	kind BufferKind,
	dynamicOffset bool,
) *GroupBuilder {
	if !buf.IsValid() {
		b.fail(fmt.Errorf("%w: buffer at binding %d", ErrInvalidHandle, len(b.entries)))
		return b
	}
	b.entries = append(b.entries, gputypes.BindGroupEntry{
		Binding: b.binding(),
		Resource: gputypes.BufferBinding{
			Buffer: buf.Value().NativeHandle(),
			Offset: offset,
			Size:   size,
		},
	})
	b.key.Uint8(uint8(kindBuffer))
	b.key.Uint64(buf.ID())
	b.key.Uint64(offset)
	b.key.Uint64(size)
	b.layout.Buffer(stages, kind, dynamicOffset)
	return b
}

// DynamicBuffer binds the buffer behind an arena allocation at offset zero
// with a dynamic offset, so every allocation from the same backing buffer
// shares one group. Pass alloc.Offset as the dynamic offset when the group
// is set.
func (b *GroupBuilder) DynamicBuffer(alloc arena.Allocation, stages Stages, kind BufferKind) *GroupBuilder {
	return b.Buffer(alloc.Buffer, 0, alloc.Size, stages, kind, true)
}

// Image binds a texture view.
func (b *GroupBuilder) Image(view handle.Handle[hal.TextureView], stages Stages) *GroupBuilder {
	if !view.IsValid() {
		b.fail(fmt.Errorf("%w: image at binding %d", ErrInvalidHandle, len(b.entries)))
		return b
	}
	b.entries = append(b.entries, gputypes.BindGroupEntry{
		Binding:  b.binding(),
		Resource: gputypes.TextureViewBinding{TextureView: nativeHandle(view.Value())},
	})
	b.key.Uint8(uint8(kindImage))
	b.key.Uint64(view.ID())
	b.layout.Image(stages)
	return b
}

// Sampler binds a sampler.
func (b *GroupBuilder) Sampler(sampler handle.Handle[hal.Sampler], stages Stages) *GroupBuilder {
	if !sampler.IsValid() {
		b.fail(fmt.Errorf("%w: sampler at binding %d", ErrInvalidHandle, len(b.entries)))
		return b
	}
	b.entries = append(b.entries, gputypes.BindGroupEntry{
		Binding:  b.binding(),
		Resource: gputypes.SamplerBinding{Sampler: nativeHandle(sampler.Value())},
	})
	b.key.Uint8(uint8(kindSampler))
	b.key.Uint64(sampler.ID())
	b.layout.Sampler(stages)
	return b
}

//nolint:gosec // G115: binding count is bounded by device limits
func (b *GroupBuilder) binding() uint32 { return uint32(len(b.entries)) }

// fail records the first error; Create returns it.
func (b *GroupBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Entries returns the device-facing entries built so far.
func (b *GroupBuilder) Entries() []gputypes.BindGroupEntry { return b.entries }

// Layout returns the layout builder kept in step with this group.
func (b *GroupBuilder) Layout() *LayoutBuilder { return b.layout }

// Err returns the first error recorded while building.
func (b *GroupBuilder) Err() error { return b.err }

// keyFor returns the identity key for a group built against layout.
func (b *GroupBuilder) keyFor(layout handle.Handle[hal.BindGroupLayout]) string {
	var k keyenc.Builder
	k.Uint64(layout.ID())
	return k.Key() + b.key.Key()
}

// Create resolves the layout through the cache, then the group. Both
// returned handles are owned by the cache.
func (b *GroupBuilder) Create(device Device, cache *Cache) (
	handle.Handle[hal.BindGroup], handle.Handle[hal.BindGroupLayout], error,
) {
	if b.err != nil {
		return handle.Handle[hal.BindGroup]{}, handle.Handle[hal.BindGroupLayout]{}, b.err
	}

	layout, err := b.layout.Create(device, cache)
	if err != nil {
		return handle.Handle[hal.BindGroup]{}, handle.Handle[hal.BindGroupLayout]{}, err
	}

	key := b.keyFor(layout)
	if group, ok := cache.groups[key]; ok {
		cache.groupHits++
		return group, layout, nil
	}

	group, err := b.createGroup(device, layout)
	if err != nil {
		return handle.Handle[hal.BindGroup]{}, handle.Handle[hal.BindGroupLayout]{}, err
	}
	cache.groups[key] = group
	cache.groupMisses++
	logging.Logger().Debug("bind group created",
		"label", b.label,
		"entries", len(b.entries),
		"id", group.ID(),
		"layout", layout.ID())
	return group, layout, nil
}

// CreateUncached creates a fresh layout and group without consulting any
// cache. The caller owns both handles.
func (b *GroupBuilder) CreateUncached(device Device) (
	handle.Handle[hal.BindGroup], handle.Handle[hal.BindGroupLayout], error,
) {
	if b.err != nil {
		return handle.Handle[hal.BindGroup]{}, handle.Handle[hal.BindGroupLayout]{}, b.err
	}
	layout, err := b.layout.CreateUncached(device)
	if err != nil {
		return handle.Handle[hal.BindGroup]{}, handle.Handle[hal.BindGroupLayout]{}, err
	}
	group, err := b.createGroup(device, layout)
	if err != nil {
		layout.Release()
		return handle.Handle[hal.BindGroup]{}, handle.Handle[hal.BindGroupLayout]{}, err
	}
	return group, layout, nil
}

func (b *GroupBuilder) createGroup(device Device, layout handle.Handle[hal.BindGroupLayout]) (handle.Handle[hal.BindGroup], error) {
	raw, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   b.label,
		Layout:  layout.Value(),
		Entries: b.entries,
	})
	if err != nil {
		return handle.Handle[hal.BindGroup]{}, fmt.Errorf("bindgroup: create group %q: %w", b.label, err)
	}
	return handle.NewWithRelease(raw, device.DestroyBindGroup), nil
}

// nativeHandle returns the backend handle of a resource, or 0 when the
// backend does not expose one.
func nativeHandle(v any) uintptr {
	if nh, ok := v.(interface{ NativeHandle() uintptr }); ok {
		return nh.NativeHandle()
	}
	return 0
}

package bindgroup

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/handle"
	"github.com/gogpu/gpucache/internal/keyenc"
	"github.com/gogpu/gpucache/internal/logging"
)

// Stages is a set of shader stages a binding is visible to.
type Stages uint8

// Shader stages.
const (
	StageVertex Stages = 1 << iota
	StageFragment
	StageCompute

	StageVertexFragment = StageVertex | StageFragment
)

// BufferKind selects how a buffer binding is accessed.
type BufferKind uint8

// Buffer binding kinds.
const (
	BufferUniform BufferKind = iota
	BufferStorage
	BufferReadOnlyStorage
)

// bindingKind tags key entries so a buffer and an image with equal ids
// never encode identically.
type bindingKind uint8

const (
	kindBuffer bindingKind = iota + 1
	kindImage
	kindSampler
)

// LayoutBuilder accumulates bind group layout entries. The binding index of
// each entry is its insertion position.
//
// The cache key is structural: visibility, binding kind and buffer type,
// in order, plus an optional seed. Two builders describing the same shape
// in the same order resolve to the same layout.
type LayoutBuilder struct {
	label   string
	seed    uint64
	entries []gputypes.BindGroupLayoutEntry
	key     keyenc.Builder
}

// NewLayout returns an empty layout builder.
func NewLayout() *LayoutBuilder {
	return &LayoutBuilder{}
}

// Label sets the debug label passed to the device. Not part of the key.
func (b *LayoutBuilder) Label(label string) *LayoutBuilder {
	b.label = label
	return b
}

// Seed distinguishes layouts that share a shape but must not be shared,
// for example layouts owned by different shader families.
func (b *LayoutBuilder) Seed(seed string) *LayoutBuilder {
	b.seed = keyenc.HashString(seed)
	return b
}

// Buffer appends a buffer binding.
func (b *LayoutBuilder) Buffer(stages Stages, kind BufferKind, dynamicOffset bool) *LayoutBuilder {
	layout := &gputypes.BufferBindingLayout{HasDynamicOffset: dynamicOffset}
	switch kind {
	case BufferStorage:
		layout.Type = gputypes.BufferBindingTypeStorage
	case BufferReadOnlyStorage:
		layout.Type = gputypes.BufferBindingTypeReadOnlyStorage
	default:
		layout.Type = gputypes.BufferBindingTypeUniform
	}

	entry := b.next(stages)
	entry.Buffer = layout
	b.push(entry, kindBuffer, stages, kind, dynamicOffset)
	return b
}

// Image appends a filterable 2D float texture binding.
func (b *LayoutBuilder) Image(stages Stages) *LayoutBuilder {
	entry := b.next(stages)
	entry.Texture = &gputypes.TextureBindingLayout{
		SampleType:    gputypes.TextureSampleTypeFloat,
		ViewDimension: gputypes.TextureViewDimension2D,
	}
	b.push(entry, kindImage, stages, 0, false)
	return b
}

// Sampler appends a filtering sampler binding.
func (b *LayoutBuilder) Sampler(stages Stages) *LayoutBuilder {
	entry := b.next(stages)
	entry.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	b.push(entry, kindSampler, stages, 0, false)
	return b
}

//nolint:gosec // G115: binding count is bounded by device limits
func (b *LayoutBuilder) next(stages Stages) gputypes.BindGroupLayoutEntry {
	entry := gputypes.BindGroupLayoutEntry{Binding: uint32(len(b.entries))}
	if stages&StageVertex != 0 {
		entry.Visibility |= gputypes.ShaderStageVertex
	}
	if stages&StageFragment != 0 {
		entry.Visibility |= gputypes.ShaderStageFragment
	}
	if stages&StageCompute != 0 {
		entry.Visibility |= gputypes.ShaderStageCompute
	}
	return entry
}

func (b *LayoutBuilder) push(entry gputypes.BindGroupLayoutEntry, kind bindingKind, stages Stages, buf BufferKind, dynamic bool) {
	b.entries = append(b.entries, entry)
	b.key.Uint8(uint8(kind))
	b.key.Uint8(uint8(stages))
	b.key.Uint8(uint8(buf))
	b.key.Bool(dynamic)
}

// Entries returns the device-facing entries built so far.
func (b *LayoutBuilder) Entries() []gputypes.BindGroupLayoutEntry { return b.entries }

// Len returns the number of entries.
func (b *LayoutBuilder) Len() int { return len(b.entries) }

// Key returns the structural cache key.
func (b *LayoutBuilder) Key() string {
	var k keyenc.Builder
	k.Uint64(b.seed)
	return k.Key() + b.key.Key()
}

// Create returns the cached layout for this shape, creating it on a miss.
func (b *LayoutBuilder) Create(device Device, cache *Cache) (handle.Handle[hal.BindGroupLayout], error) {
	if err := cache.usable(device); err != nil {
		return handle.Handle[hal.BindGroupLayout]{}, err
	}

	key := b.Key()
	if layout, ok := cache.layouts[key]; ok {
		cache.layoutHits++
		return layout, nil
	}

	layout, err := b.CreateUncached(device)
	if err != nil {
		return handle.Handle[hal.BindGroupLayout]{}, err
	}
	cache.layouts[key] = layout
	cache.layoutMisses++
	logging.Logger().Debug("bind group layout created",
		"label", b.label,
		"entries", len(b.entries),
		"id", layout.ID())
	return layout, nil
}

// CreateUncached creates a new layout without consulting any cache. The
// caller owns the returned handle.
func (b *LayoutBuilder) CreateUncached(device Device) (handle.Handle[hal.BindGroupLayout], error) {
	if device == nil {
		return handle.Handle[hal.BindGroupLayout]{}, ErrNilDevice
	}
	raw, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   b.label,
		Entries: b.entries,
	})
	if err != nil {
		return handle.Handle[hal.BindGroupLayout]{}, fmt.Errorf("bindgroup: create layout %q: %w", b.label, err)
	}
	return handle.NewWithRelease(raw, device.DestroyBindGroupLayout), nil
}

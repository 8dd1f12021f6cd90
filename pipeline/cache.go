// Package pipeline deduplicates render pipelines and pipeline layouts.
//
// A render pipeline is keyed by the identity of its shader modules, its
// entry points, the fixed-function state in RenderPipelineInfo and the
// pipeline layout it is built against. A pipeline layout is keyed by the
// exact ordered list of bind group layout ids it combines.
//
// Entries are never evicted; a Cache lives as long as its device.
//
//	layout, err := cache.Layout(device, []handle.Handle[hal.BindGroupLayout]{bgl})
//	if err != nil {
//	    return err
//	}
//	p, err := cache.RenderPipeline(device, layout, pipeline.RenderPipelineInfo{
//	    VS:     module,
//	    FS:     module,
//	    Format: gputypes.TextureFormatBGRA8Unorm,
//	    Blend:  pipeline.BlendPremultiplied(),
//	})
package pipeline

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/handle"
	"github.com/gogpu/gpucache/internal/keyenc"
	"github.com/gogpu/gpucache/internal/logging"
)

// Pipeline cache errors.
var (
	// ErrNilDevice is returned when creating objects without a device.
	ErrNilDevice = errors.New("pipeline: device is nil")

	// ErrNilShader is returned when a shader module handle is invalid.
	ErrNilShader = errors.New("pipeline: shader module is nil")

	// ErrInvalidLayout is returned for an invalid pipeline or bind group
	// layout handle.
	ErrInvalidLayout = errors.New("pipeline: invalid layout handle")

	// ErrDestroyed is returned when using a cache after Destroy.
	ErrDestroyed = errors.New("pipeline: cache destroyed")
)

// Device is the part of a GPU device the pipeline cache needs.
// hal.Device satisfies it.
type Device interface {
	CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error)
	DestroyPipelineLayout(layout hal.PipelineLayout)
	CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error)
	DestroyRenderPipeline(pipeline hal.RenderPipeline)
}

// Cache holds every pipeline and pipeline layout created through it.
//
// Returned handles are borrowed: the cache keeps its own reference and
// releases it in Destroy. Clone a handle to keep it past that point.
// A Cache is not safe for concurrent use.
type Cache struct {
	pipelines map[string]handle.Handle[hal.RenderPipeline]
	layouts   map[string]handle.Handle[hal.PipelineLayout]

	hits, misses             uint64
	layoutHits, layoutMisses uint64

	destroyed bool
}

// NewCache creates an empty pipeline cache.
func NewCache() *Cache {
	return &Cache{
		pipelines: make(map[string]handle.Handle[hal.RenderPipeline]),
		layouts:   make(map[string]handle.Handle[hal.PipelineLayout]),
	}
}

func (c *Cache) usable(device Device) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if device == nil {
		return ErrNilDevice
	}
	return nil
}

// RenderPipeline returns the cached pipeline for info built against layout,
// creating it on a miss.
//
// Returns an error if:
//   - The device is nil
//   - The layout or either shader handle is invalid
//   - Pipeline creation fails (nothing is cached)
func (c *Cache) RenderPipeline(
	device Device,
	layout handle.Handle[hal.PipelineLayout],
	info RenderPipelineInfo,
) (handle.Handle[hal.RenderPipeline], error) {
	if err := c.usable(device); err != nil {
		return handle.Handle[hal.RenderPipeline]{}, err
	}
	if !layout.IsValid() {
		return handle.Handle[hal.RenderPipeline]{}, ErrInvalidLayout
	}
	if !info.VS.IsValid() || !info.FS.IsValid() {
		return handle.Handle[hal.RenderPipeline]{}, ErrNilShader
	}

	info = info.normalized()
	key := info.key(layout.ID())
	if p, ok := c.pipelines[key]; ok {
		c.hits++
		return p, nil
	}

	raw, err := device.CreateRenderPipeline(info.descriptor(layout.Value()))
	if err != nil {
		return handle.Handle[hal.RenderPipeline]{}, fmt.Errorf("pipeline: create render pipeline %q: %w", info.Label, err)
	}
	p := handle.NewWithRelease(raw, device.DestroyRenderPipeline)
	c.pipelines[key] = p
	c.misses++
	logging.Logger().Debug("render pipeline created",
		"label", info.Label,
		"id", p.ID(),
		"vs", info.VS.ID(),
		"fs", info.FS.ID(),
		"format", info.Format,
		"samples", info.Samples,
		"blend", info.Blend != nil,
		"depth", info.Depth)
	return p, nil
}

// Layout returns the cached pipeline layout combining bindGroups in order,
// creating it on a miss. An empty list yields a layout with no bind groups.
func (c *Cache) Layout(
	device Device,
	bindGroups []handle.Handle[hal.BindGroupLayout],
) (handle.Handle[hal.PipelineLayout], error) {
	if err := c.usable(device); err != nil {
		return handle.Handle[hal.PipelineLayout]{}, err
	}

	var k keyenc.Builder
	raws := make([]hal.BindGroupLayout, len(bindGroups))
	for i, bg := range bindGroups {
		if !bg.IsValid() {
			return handle.Handle[hal.PipelineLayout]{}, fmt.Errorf("%w: bind group layout %d", ErrInvalidLayout, i)
		}
		k.Uint64(bg.ID())
		raws[i] = bg.Value()
	}

	key := k.Key()
	if l, ok := c.layouts[key]; ok {
		c.layoutHits++
		return l, nil
	}

	raw, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		BindGroupLayouts: raws,
	})
	if err != nil {
		return handle.Handle[hal.PipelineLayout]{}, fmt.Errorf("pipeline: create pipeline layout: %w", err)
	}
	l := handle.NewWithRelease(raw, device.DestroyPipelineLayout)
	c.layouts[key] = l
	c.layoutMisses++
	logging.Logger().Debug("pipeline layout created",
		"id", l.ID(),
		"bind_groups", len(bindGroups))
	return l, nil
}

// PipelineCount returns the number of cached render pipelines.
func (c *Cache) PipelineCount() int { return len(c.pipelines) }

// LayoutCount returns the number of cached pipeline layouts.
func (c *Cache) LayoutCount() int { return len(c.layouts) }

// Size returns the total number of cached objects.
func (c *Cache) Size() int { return len(c.pipelines) + len(c.layouts) }

// Stats describes cache activity.
type Stats struct {
	Pipelines    int
	Layouts      int
	Hits         uint64
	Misses       uint64
	LayoutHits   uint64
	LayoutMisses uint64
}

// HitRate returns the render pipeline hit rate (0.0 to 1.0).
//
// Returns 0.0 if no requests have been made.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total)
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Pipelines[%d pipelines, %d layouts, %.1f%% hits]",
		s.Pipelines, s.Layouts, s.HitRate()*100)
}

// Stats returns current statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Pipelines:    len(c.pipelines),
		Layouts:      len(c.layouts),
		Hits:         c.hits,
		Misses:       c.misses,
		LayoutHits:   c.layoutHits,
		LayoutMisses: c.layoutMisses,
	}
}

// Destroy releases the cache's reference to every pipeline, then every
// pipeline layout. Safe to call more than once.
func (c *Cache) Destroy() {
	if c.destroyed {
		return
	}
	for key, p := range c.pipelines {
		p.Release()
		delete(c.pipelines, key)
	}
	for key, l := range c.layouts {
		l.Release()
		delete(c.layouts, key)
	}
	c.destroyed = true
}

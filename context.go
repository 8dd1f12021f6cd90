package gpucache

import (
	"fmt"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/arena"
	"github.com/gogpu/gpucache/bindgroup"
	"github.com/gogpu/gpucache/handle"
	"github.com/gogpu/gpucache/pipeline"
	"github.com/gogpu/gpucache/shader"
)

// Context owns the caches and arenas for one device.
//
// A Context is used from the goroutine that records frames. It is not safe
// for concurrent use.
type Context struct {
	cfg    Config
	device Device
	queue  Queue

	uniforms   *arena.Arena
	vertices   *arena.Arena
	bindGroups *bindgroup.Cache
	pipelines  *pipeline.Cache
	shaders    *shader.Library

	frame     uint64
	destroyed bool
}

// New creates a Context in front of device. The queue is optional and only
// needed for the Upload helpers; set it with WithQueue.
func New(device Device, opts ...Option) (*Context, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger != nil {
		SetLogger(cfg.Logger)
	}

	uniforms, err := arena.New(device, cfg.UniformAlignment, hal.BufferDescriptor{
		Label: cfg.Label + "_uniforms",
		Size:  cfg.UniformArenaSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpucache: uniform arena: %w", err)
	}
	vertices, err := arena.New(device, cfg.VertexAlignment, hal.BufferDescriptor{
		Label: cfg.Label + "_vertices",
		Size:  cfg.VertexArenaSize,
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		uniforms.Destroy()
		return nil, fmt.Errorf("gpucache: vertex arena: %w", err)
	}

	var shaderOpts []shader.Option
	if cfg.NativeWGSL {
		shaderOpts = append(shaderOpts, shader.WithNativeWGSL())
	}

	c := &Context{
		cfg:        cfg,
		device:     device,
		queue:      cfg.Queue,
		uniforms:   uniforms,
		vertices:   vertices,
		bindGroups: bindgroup.NewCache(),
		pipelines:  pipeline.NewCache(),
		shaders:    shader.NewLibrary(shaderOpts...),
	}
	Logger().Info("context created",
		"label", cfg.Label,
		"uniform_alignment", cfg.UniformAlignment,
		"uniform_arena", cfg.UniformArenaSize,
		"vertex_arena", cfg.VertexArenaSize)
	return c, nil
}

// NewFromProvider creates a Context on the device of a shared provider,
// such as a gogpu application. The provider must expose HAL objects through
// HalDevice() and HalQueue(), or return them from Device() and Queue().
//
// The provider's surface format becomes the default color format unless an
// option overrides it.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Context, error) {
	if provider == nil {
		return nil, ErrNoHALDevice
	}
	device, queue, err := deviceFromProvider(provider)
	if err != nil {
		return nil, err
	}

	var pre []Option
	if queue != nil {
		pre = append(pre, WithQueue(queue))
	}
	if f := provider.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		pre = append(pre, WithColorFormat(f))
	}
	c, err := New(device, append(pre, opts...)...)
	if err != nil {
		return nil, err
	}
	info := provider.AdapterInfo()
	Logger().Info("context attached to provider",
		"adapter", info.Name,
		"type", info.Type.String(),
		"format", c.cfg.ColorFormat.String())
	return c, nil
}

// Config returns the configuration the Context was created with.
func (c *Context) Config() Config { return c.cfg }

// Device returns the underlying device.
func (c *Context) Device() Device { return c.device }

// Queue returns the queue, or nil if none was configured.
func (c *Context) Queue() Queue { return c.queue }

// Uniforms returns the uniform arena.
func (c *Context) Uniforms() *arena.Arena { return c.uniforms }

// Vertices returns the vertex arena.
func (c *Context) Vertices() *arena.Arena { return c.vertices }

// BindGroups returns the bind group cache.
func (c *Context) BindGroups() *bindgroup.Cache { return c.bindGroups }

// Pipelines returns the pipeline cache.
func (c *Context) Pipelines() *pipeline.Cache { return c.pipelines }

// Shaders returns the shader library.
func (c *Context) Shaders() *shader.Library { return c.shaders }

// Frame returns the index of the frame being recorded.
func (c *Context) Frame() uint64 { return c.frame }

// UploadUniform writes data into the uniform arena.
func (c *Context) UploadUniform(data []byte) (arena.Allocation, error) {
	return c.upload(c.uniforms, data)
}

// UploadVertices writes data into the vertex arena.
func (c *Context) UploadVertices(data []byte) (arena.Allocation, error) {
	return c.upload(c.vertices, data)
}

func (c *Context) upload(a *arena.Arena, data []byte) (arena.Allocation, error) {
	if c.destroyed {
		return arena.Allocation{}, ErrDestroyed
	}
	if c.queue == nil {
		return arena.Allocation{}, ErrNoQueue
	}
	return a.Upload(c.queue, data)
}

// Shader returns the shader module for wgsl.
func (c *Context) Shader(label, wgsl string) (handle.Handle[hal.ShaderModule], error) {
	if c.destroyed {
		return handle.Handle[hal.ShaderModule]{}, ErrDestroyed
	}
	return c.shaders.Module(c.device, c.label(label), wgsl)
}

// BindGroup resolves a group builder through the bind group cache.
func (c *Context) BindGroup(b *bindgroup.GroupBuilder) (
	handle.Handle[hal.BindGroup], handle.Handle[hal.BindGroupLayout], error,
) {
	if c.destroyed {
		return handle.Handle[hal.BindGroup]{}, handle.Handle[hal.BindGroupLayout]{}, ErrDestroyed
	}
	return b.Create(c.device, c.bindGroups)
}

// BindGroupLayout resolves a layout builder through the bind group cache.
func (c *Context) BindGroupLayout(b *bindgroup.LayoutBuilder) (handle.Handle[hal.BindGroupLayout], error) {
	if c.destroyed {
		return handle.Handle[hal.BindGroupLayout]{}, ErrDestroyed
	}
	return b.Create(c.device, c.bindGroups)
}

// PipelineLayout returns the pipeline layout combining bindGroups in order.
func (c *Context) PipelineLayout(bindGroups ...handle.Handle[hal.BindGroupLayout]) (handle.Handle[hal.PipelineLayout], error) {
	if c.destroyed {
		return handle.Handle[hal.PipelineLayout]{}, ErrDestroyed
	}
	return c.pipelines.Layout(c.device, bindGroups)
}

// RenderPipeline returns the render pipeline for info built against
// layout. An undefined color format is replaced by Config.ColorFormat.
func (c *Context) RenderPipeline(
	layout handle.Handle[hal.PipelineLayout],
	info pipeline.RenderPipelineInfo,
) (handle.Handle[hal.RenderPipeline], error) {
	if c.destroyed {
		return handle.Handle[hal.RenderPipeline]{}, ErrDestroyed
	}
	if info.Format == gputypes.TextureFormatUndefined {
		info.Format = c.cfg.ColorFormat
	}
	if info.Label == "" {
		info.Label = c.label("pipeline")
	}
	return c.pipelines.RenderPipeline(c.device, layout, info)
}

func (c *Context) label(name string) string {
	if c.cfg.Label == "" {
		return name
	}
	return c.cfg.Label + "_" + name
}

// EndFrame frees both arenas and advances the frame counter. It returns the
// index of the frame that just finished. Allocations from that frame are
// stale afterwards.
func (c *Context) EndFrame() uint64 {
	finished := c.frame
	if c.destroyed {
		return finished
	}
	c.uniforms.Free()
	c.vertices.Free()
	c.frame++
	return finished
}

// Stats aggregates statistics from every cache and arena.
type Stats struct {
	Frame      uint64
	Uniforms   arena.Stats
	Vertices   arena.Stats
	BindGroups bindgroup.Stats
	Pipelines  pipeline.Stats
	Shaders    shader.Stats
}

// String returns a multi-line human-readable summary.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "frame %d\n", s.Frame)
	fmt.Fprintf(&b, "  uniforms: %s\n", s.Uniforms)
	fmt.Fprintf(&b, "  vertices: %s\n", s.Vertices)
	fmt.Fprintf(&b, "  %s\n", s.BindGroups)
	fmt.Fprintf(&b, "  %s\n", s.Pipelines)
	fmt.Fprintf(&b, "  %s", s.Shaders)
	return b.String()
}

// Stats returns current statistics.
func (c *Context) Stats() Stats {
	return Stats{
		Frame:      c.frame,
		Uniforms:   c.uniforms.Stats(),
		Vertices:   c.vertices.Stats(),
		BindGroups: c.bindGroups.Stats(),
		Pipelines:  c.pipelines.Stats(),
		Shaders:    c.shaders.Stats(),
	}
}

// Destroy releases every cached object and arena buffer. Objects that
// callers cloned survive until their clones are released. Safe to call more
// than once.
func (c *Context) Destroy() {
	if c.destroyed {
		return
	}
	stats := c.Stats()
	c.pipelines.Destroy()
	c.bindGroups.Destroy()
	c.shaders.Destroy()
	c.vertices.Destroy()
	c.uniforms.Destroy()
	c.destroyed = true
	Logger().Info("context destroyed",
		"label", c.cfg.Label,
		"frames", stats.Frame,
		"pipelines", stats.Pipelines.Pipelines,
		"bind_groups", stats.BindGroups.Groups,
		"arena_buffers", stats.Uniforms.Buffers+stats.Vertices.Buffers)
}

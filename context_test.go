package gpucache

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucache/arena"
	"github.com/gogpu/gpucache/bindgroup"
	"github.com/gogpu/gpucache/internal/nulldevice"
	"github.com/gogpu/gpucache/pipeline"
)

const spriteWGSL = `
@vertex
fn vs_main() -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 1.0, 1.0, 1.0);
}
`

func newTestContext(t *testing.T, opts ...Option) (*Context, *nulldevice.Device, *nulldevice.Queue) {
	t.Helper()
	dev := nulldevice.New()
	queue := &nulldevice.Queue{}
	ctx, err := New(dev, append([]Option{WithQueue(queue)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(ctx.Destroy)
	return ctx, dev, queue
}

// fakeProvider implements gpucontext.DeviceProvider and exposes HAL objects.
type fakeProvider struct {
	dev    any
	queue  any
	format gputypes.TextureFormat
	hal    bool
}

func (p *fakeProvider) Device() gpucontext.Device {
	if p.hal {
		return nil
	}
	return p.dev
}

func (p *fakeProvider) Queue() gpucontext.Queue {
	if p.hal {
		return nil
	}
	return p.queue
}

func (p *fakeProvider) SurfaceFormat() gputypes.TextureFormat { return p.format }
func (p *fakeProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *fakeProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "null", Type: gpucontext.AdapterTypeSoftware}
}

type fakeHALProvider struct{ fakeProvider }

func (p *fakeHALProvider) HalDevice() any { return p.dev }
func (p *fakeHALProvider) HalQueue() any  { return p.queue }

// =============================================================================
// Construction
// =============================================================================

func TestNew(t *testing.T) {
	ctx, dev, _ := newTestContext(t)

	if ctx.Device() != dev {
		t.Error("Device() does not return the device")
	}
	if got := dev.Created(nulldevice.KindBuffer); got != 2 {
		t.Errorf("buffers created = %d, want 2 (one per arena)", got)
	}
	if ctx.Uniforms().Alignment() != DefaultUniformAlignment {
		t.Errorf("uniform alignment = %d, want %d", ctx.Uniforms().Alignment(), DefaultUniformAlignment)
	}
	if ctx.Vertices().Capacity() != DefaultVertexArenaSize {
		t.Errorf("vertex capacity = %d, want %d", ctx.Vertices().Capacity(), DefaultVertexArenaSize)
	}
	if ctx.BindGroups() == nil || ctx.Pipelines() == nil || ctx.Shaders() == nil {
		t.Error("caches not initialized")
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNilDevice) {
		t.Errorf("nil device error = %v, want ErrNilDevice", err)
	}

	dev := nulldevice.New()
	if _, err := New(dev, WithUniformAlignment(3)); !errors.Is(err, arena.ErrInvalidAlignment) {
		t.Errorf("bad alignment error = %v, want ErrInvalidAlignment", err)
	}

	if _, err := New(dev, WithVertexArenaSize(0)); !errors.Is(err, arena.ErrInvalidCapacity) {
		t.Errorf("zero vertex arena error = %v, want ErrInvalidCapacity", err)
	}
	// The uniform arena created before the failure is released.
	if got := dev.Live(nulldevice.KindBuffer); got != 0 {
		t.Errorf("live buffers = %d after failed New, want 0", got)
	}
}

func TestNewFromProvider(t *testing.T) {
	dev := nulldevice.New()
	queue := &nulldevice.Queue{}

	tests := []struct {
		name     string
		provider gpucontext.DeviceProvider
	}{
		{"hal accessors", &fakeHALProvider{fakeProvider{dev: dev, queue: queue, format: gputypes.TextureFormatRGBA8Unorm, hal: true}}},
		{"device accessors", &fakeProvider{dev: dev, queue: queue, format: gputypes.TextureFormatRGBA8Unorm}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := NewFromProvider(tt.provider)
			if err != nil {
				t.Fatalf("NewFromProvider: %v", err)
			}
			defer ctx.Destroy()

			if ctx.Device() != dev {
				t.Error("device not taken from provider")
			}
			if ctx.Queue() != queue {
				t.Error("queue not taken from provider")
			}
			if ctx.Config().ColorFormat != gputypes.TextureFormatRGBA8Unorm {
				t.Errorf("ColorFormat = %v, want provider surface format", ctx.Config().ColorFormat)
			}
		})
	}
}

func TestNewFromProviderOverrides(t *testing.T) {
	p := &fakeProvider{dev: nulldevice.New(), format: gputypes.TextureFormatUndefined}

	ctx, err := NewFromProvider(p, WithColorFormat(gputypes.TextureFormatRGBA8Unorm))
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Destroy()
	if ctx.Config().ColorFormat != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("ColorFormat = %v, want RGBA8Unorm", ctx.Config().ColorFormat)
	}
	if ctx.Queue() != nil {
		t.Error("Queue should be nil when the provider has none")
	}
}

func TestNewFromProviderErrors(t *testing.T) {
	if _, err := NewFromProvider(nil); !errors.Is(err, ErrNoHALDevice) {
		t.Errorf("nil provider error = %v, want ErrNoHALDevice", err)
	}
	p := &fakeHALProvider{fakeProvider{dev: "not a device", hal: true}}
	if _, err := NewFromProvider(p); !errors.Is(err, ErrNoHALDevice) {
		t.Errorf("bad device error = %v, want ErrNoHALDevice", err)
	}
}

// =============================================================================
// Frame workflow
// =============================================================================

func TestDrawWorkflow(t *testing.T) {
	ctx, dev, queue := newTestContext(t, WithLabel("test"))

	vs, err := ctx.Shader("sprite", spriteWGSL)
	if err != nil {
		t.Fatalf("Shader: %v", err)
	}

	for frame := range 3 {
		for range 10 {
			alloc, err := ctx.UploadUniform(make([]byte, 64))
			if err != nil {
				t.Fatalf("UploadUniform: %v", err)
			}
			_, bgl, err := ctx.BindGroup(bindgroup.NewGroup().
				DynamicBuffer(alloc, bindgroup.StageVertex, bindgroup.BufferUniform))
			if err != nil {
				t.Fatalf("BindGroup: %v", err)
			}
			layout, err := ctx.PipelineLayout(bgl)
			if err != nil {
				t.Fatalf("PipelineLayout: %v", err)
			}
			if _, err := ctx.RenderPipeline(layout, pipeline.RenderPipelineInfo{
				VS:    vs,
				FS:    vs,
				Blend: pipeline.BlendPremultiplied(),
			}); err != nil {
				t.Fatalf("RenderPipeline: %v", err)
			}
		}
		if got := ctx.EndFrame(); got != uint64(frame) {
			t.Errorf("EndFrame = %d, want %d", got, frame)
		}
	}

	if got := dev.Created(nulldevice.KindRenderPipeline); got != 1 {
		t.Errorf("pipelines created = %d, want 1", got)
	}
	if got := dev.Created(nulldevice.KindBindGroup); got != 1 {
		t.Errorf("bind groups created = %d, want 1", got)
	}
	if got := dev.Created(nulldevice.KindShaderModule); got != 1 {
		t.Errorf("shader modules created = %d, want 1", got)
	}
	if got := len(queue.Writes); got != 30 {
		t.Errorf("writes = %d, want 30", got)
	}
	if f := dev.LastRenderPipeline.Fragment.Targets[0].Format; f != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("pipeline format = %v, want default BGRA8Unorm", f)
	}
	if got := dev.LastShaderModule.Label; got != "test_sprite" {
		t.Errorf("shader label = %q, want %q", got, "test_sprite")
	}

	s := ctx.Stats()
	if s.Frame != 3 {
		t.Errorf("Frame = %d, want 3", s.Frame)
	}
	if s.Uniforms.Epoch != 3 || s.Uniforms.Used != 0 {
		t.Errorf("uniform stats = %+v, want epoch 3 and nothing used", s.Uniforms)
	}
	if s.Pipelines.Hits != 29 {
		t.Errorf("pipeline hits = %d, want 29", s.Pipelines.Hits)
	}
	out := s.String()
	for _, want := range []string{"frame 3", "uniforms:", "Pipelines[", "BindGroups[", "Shaders["} {
		if !strings.Contains(out, want) {
			t.Errorf("Stats.String() missing %q:\n%s", want, out)
		}
	}
}

func TestEndFrameMakesAllocationsStale(t *testing.T) {
	ctx, _, _ := newTestContext(t)

	alloc, err := ctx.UploadVertices(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.Vertices().Check(alloc); err != nil {
		t.Errorf("Check before EndFrame = %v, want nil", err)
	}
	ctx.EndFrame()
	if err := ctx.Vertices().Check(alloc); !errors.Is(err, arena.ErrStaleAllocation) {
		t.Errorf("Check after EndFrame = %v, want ErrStaleAllocation", err)
	}
}

func TestUploadWithoutQueue(t *testing.T) {
	ctx, err := New(nulldevice.New())
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Destroy()
	if _, err := ctx.UploadUniform([]byte{1}); !errors.Is(err, ErrNoQueue) {
		t.Errorf("UploadUniform error = %v, want ErrNoQueue", err)
	}
}

func TestDestroy(t *testing.T) {
	dev := nulldevice.New()
	ctx, err := New(dev, WithNativeWGSL())
	if err != nil {
		t.Fatal(err)
	}

	vs, _ := ctx.Shader("s", "wgsl")
	bgl, _ := ctx.BindGroupLayout(bindgroup.NewLayout().Sampler(bindgroup.StageFragment))
	layout, _ := ctx.PipelineLayout(bgl)
	if _, err := ctx.RenderPipeline(layout, pipeline.RenderPipelineInfo{VS: vs, FS: vs}); err != nil {
		t.Fatal(err)
	}

	ctx.Destroy()
	ctx.Destroy()

	for _, k := range []nulldevice.Kind{
		nulldevice.KindBuffer,
		nulldevice.KindBindGroupLayout,
		nulldevice.KindPipelineLayout,
		nulldevice.KindRenderPipeline,
		nulldevice.KindShaderModule,
	} {
		if got := dev.Live(k); got != 0 {
			t.Errorf("live %v = %d after Destroy, want 0", k, got)
		}
	}

	if _, err := ctx.Shader("s", "wgsl"); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Shader after Destroy = %v, want ErrDestroyed", err)
	}
	if _, _, err := ctx.BindGroup(bindgroup.NewGroup()); !errors.Is(err, ErrDestroyed) {
		t.Errorf("BindGroup after Destroy = %v, want ErrDestroyed", err)
	}
	if _, err := ctx.UploadUniform(nil); !errors.Is(err, ErrDestroyed) {
		t.Errorf("UploadUniform after Destroy = %v, want ErrDestroyed", err)
	}
	if got := ctx.EndFrame(); got != 0 {
		t.Errorf("EndFrame after Destroy = %d, want 0", got)
	}
}

// Command gpucache-bench runs a synthetic sprite workload through a
// gpucache Context on an in-memory device and reports cache hit rates,
// arena growth and device object counts.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache"
	"github.com/gogpu/gpucache/bindgroup"
	"github.com/gogpu/gpucache/handle"
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

func main() {
	var (
		frames      = flag.Int("frames", 120, "frames to record")
		draws       = flag.Int("draws", 500, "draw calls per frame")
		textures    = flag.Int("textures", 8, "distinct textures sampled")
		uniformSize = flag.Int("uniform-size", 64, "bytes of uniforms per draw")
		arenaSize   = flag.Uint64("arena-size", gpucache.DefaultUniformArenaSize, "uniform arena buffer size")
		nativeWGSL  = flag.Bool("native-wgsl", false, "pass WGSL to the device without compiling")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *textures < 1 {
		log.Fatalf("textures must be at least 1, got %d", *textures)
	}

	opts := []gpucache.Option{
		gpucache.WithLabel("bench"),
		gpucache.WithUniformArenaSize(*arenaSize),
		gpucache.WithQueue(&nulldevice.Queue{}),
	}
	if *nativeWGSL {
		opts = append(opts, gpucache.WithNativeWGSL())
	}
	if *verbose {
		opts = append(opts, gpucache.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))))
	}

	dev := nulldevice.New()
	ctx, err := gpucache.New(dev, opts...)
	if err != nil {
		log.Fatalf("Failed to create context: %v", err)
	}
	defer ctx.Destroy()

	module, err := ctx.Shader("sprite", spriteWGSL)
	if err != nil {
		log.Fatalf("Failed to create shader: %v", err)
	}

	views := make([]handle.Handle[hal.TextureView], *textures)
	for i := range views {
		views[i] = handle.New[hal.TextureView](&nulldevice.Object{Label: "texture", Serial: uint64(1000 + i)})
	}
	sampler := handle.New[hal.Sampler](&nulldevice.Object{Label: "sampler", Serial: 999})
	blends := []*gputypes.BlendState{
		pipeline.BlendAlpha(),
		pipeline.BlendPremultiplied(),
		pipeline.BlendAdditive(),
		pipeline.BlendReplace(),
	}
	uniforms := make([]byte, *uniformSize)

	start := time.Now()
	for range *frames {
		for d := range *draws {
			alloc, err := ctx.UploadUniform(uniforms)
			if err != nil {
				log.Fatalf("Failed to upload uniforms: %v", err)
			}
			_, bgl, err := ctx.BindGroup(bindgroup.NewGroup().
				Label("sprite").
				DynamicBuffer(alloc, bindgroup.StageVertex, bindgroup.BufferUniform).
				Image(views[d%len(views)], bindgroup.StageFragment).
				Sampler(sampler, bindgroup.StageFragment))
			if err != nil {
				log.Fatalf("Failed to create bind group: %v", err)
			}
			layout, err := ctx.PipelineLayout(bgl)
			if err != nil {
				log.Fatalf("Failed to create pipeline layout: %v", err)
			}
			if _, err := ctx.RenderPipeline(layout, pipeline.RenderPipelineInfo{
				VS:    module,
				FS:    module,
				Blend: blends[d%len(blends)],
			}); err != nil {
				log.Fatalf("Failed to create pipeline: %v", err)
			}
		}
		ctx.EndFrame()
	}
	elapsed := time.Since(start)

	total := *frames * *draws
	log.Printf("%d frames x %d draws in %v (%v per draw)\n",
		*frames, *draws, elapsed, elapsed/time.Duration(max(total, 1)))
	log.Printf("stats:\n%s\n", ctx.Stats())
	for _, k := range []nulldevice.Kind{
		nulldevice.KindBuffer,
		nulldevice.KindBindGroupLayout,
		nulldevice.KindBindGroup,
		nulldevice.KindPipelineLayout,
		nulldevice.KindRenderPipeline,
		nulldevice.KindShaderModule,
	} {
		log.Printf("device %-18s created %d\n", k, dev.Created(k))
	}
}

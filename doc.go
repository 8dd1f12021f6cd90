// Package gpucache caches GPU objects and allocates per-frame scratch
// memory in front of a WebGPU-style device.
//
// # Overview
//
// Creating a render pipeline, pipeline layout, bind group or bind group
// layout on every draw call is expensive, and so is allocating a fresh GPU
// buffer for every piece of transient uniform or vertex data. gpucache
// keeps one live object per equivalent request and hands out aligned byte
// ranges from a small set of reusable buffers.
//
// # Quick Start
//
//	import "github.com/gogpu/gpucache"
//
//	ctx, err := gpucache.New(device, gpucache.WithQueue(queue))
//	if err != nil {
//	    return err
//	}
//	defer ctx.Destroy()
//
//	module, _ := ctx.Shader("sprite", spriteWGSL)
//	alloc, _ := ctx.UploadUniform(uniformBytes)
//	group, layout, _ := ctx.BindGroup(bindgroup.NewGroup().
//	    DynamicBuffer(alloc, bindgroup.StageVertex, bindgroup.BufferUniform).
//	    Image(view, bindgroup.StageFragment).
//	    Sampler(sampler, bindgroup.StageFragment))
//	pl, _ := ctx.PipelineLayout(layout)
//	p, _ := ctx.RenderPipeline(pl, pipeline.RenderPipelineInfo{VS: module, FS: module})
//	// record the draw with p, group and alloc.Offset as the dynamic offset
//	ctx.EndFrame()
//
// # Architecture
//
// The library is organized into:
//   - handle: identity for driver objects (shared ownership plus a unique id)
//   - arena: growing, aligned bump allocator over fixed-size buffers
//   - bindgroup: layout and group builders with a deduplicating cache
//   - pipeline: render pipeline and pipeline layout cache
//   - shader: WGSL to shader module, compiled with naga
//   - gpucache: Context tying one device to all of the above
//
// # Ownership
//
// Handles returned by caches are borrowed. The cache keeps a reference and
// releases it in Destroy. Take a Clone to keep an object alive past the
// cache; Release it when done.
//
// # Concurrency
//
// A Context and everything it owns is meant to be used from the goroutine
// recording frames and is not safe for concurrent use. Handle id
// assignment is safe for concurrent use.
//
// # Logging
//
// gpucache is silent by default. Use SetLogger or WithLogger to route
// diagnostics to any slog.Handler.
package gpucache

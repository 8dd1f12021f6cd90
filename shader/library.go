// Package shader turns WGSL source into shader module handles.
//
// A Library compiles each distinct source once. By default WGSL is
// compiled to SPIR-V with naga before it reaches the device; backends that
// accept WGSL directly can skip that step with WithNativeWGSL.
//
// Module handles carry their own ids, so two identical sources share one
// module and therefore one set of cached pipelines.
package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/handle"
	"github.com/gogpu/gpucache/internal/logging"
)

// Shader library errors.
var (
	// ErrNilDevice is returned when creating a module without a device.
	ErrNilDevice = errors.New("shader: device is nil")

	// ErrCompile wraps WGSL compilation failures.
	ErrCompile = errors.New("shader: compile failed")

	// ErrDestroyed is returned when using a library after Destroy.
	ErrDestroyed = errors.New("shader: library destroyed")
)

// Device is the part of a GPU device the library needs. hal.Device
// satisfies it.
type Device interface {
	CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error)
	DestroyShaderModule(module hal.ShaderModule)
}

// Option configures a Library.
type Option func(*Library)

// WithNativeWGSL passes WGSL source to the device unchanged instead of
// compiling it to SPIR-V.
func WithNativeWGSL() Option {
	return func(l *Library) {
		l.nativeWGSL = true
	}
}

// WithDebugInfo keeps debug names and line information in generated
// SPIR-V.
func WithDebugInfo() Option {
	return func(l *Library) {
		l.compileOpts.Debug = true
	}
}

// Library caches shader modules by source. Not safe for concurrent use.
type Library struct {
	nativeWGSL  bool
	compileOpts naga.CompileOptions

	modules map[string]handle.Handle[hal.ShaderModule]

	hits, misses uint64
	destroyed    bool
}

// NewLibrary creates an empty library.
func NewLibrary(opts ...Option) *Library {
	l := &Library{
		compileOpts: naga.DefaultOptions(),
		modules:     make(map[string]handle.Handle[hal.ShaderModule]),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Module returns the module for wgsl, compiling and creating it on the
// first request. The label is used only for that first creation.
func (l *Library) Module(device Device, label, wgsl string) (handle.Handle[hal.ShaderModule], error) {
	if l.destroyed {
		return handle.Handle[hal.ShaderModule]{}, ErrDestroyed
	}
	if device == nil {
		return handle.Handle[hal.ShaderModule]{}, ErrNilDevice
	}
	if m, ok := l.modules[wgsl]; ok {
		l.hits++
		return m, nil
	}

	desc := &hal.ShaderModuleDescriptor{Label: label}
	if l.nativeWGSL {
		desc.Source.WGSL = wgsl
	} else {
		code, err := compile(wgsl, l.compileOpts)
		if err != nil {
			return handle.Handle[hal.ShaderModule]{}, fmt.Errorf("shader %q: %w", label, err)
		}
		desc.Source.SPIRV = code
	}

	raw, err := device.CreateShaderModule(desc)
	if err != nil {
		return handle.Handle[hal.ShaderModule]{}, fmt.Errorf("shader: create module %q: %w", label, err)
	}
	m := handle.NewWithRelease(raw, device.DestroyShaderModule)
	l.modules[wgsl] = m
	l.misses++
	logging.Logger().Debug("shader module created",
		"label", label,
		"id", m.ID(),
		"native_wgsl", l.nativeWGSL,
		"spirv_words", len(desc.Source.SPIRV))
	return m, nil
}

// Len returns the number of cached modules.
func (l *Library) Len() int { return len(l.modules) }

// Stats describes library activity.
type Stats struct {
	Modules int
	Hits    uint64
	Misses  uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Shaders[%d modules, %d hits, %d misses]", s.Modules, s.Hits, s.Misses)
}

// Stats returns current statistics.
func (l *Library) Stats() Stats {
	return Stats{Modules: len(l.modules), Hits: l.hits, Misses: l.misses}
}

// Destroy releases the library's reference to every module. Safe to call
// more than once.
func (l *Library) Destroy() {
	if l.destroyed {
		return
	}
	for src, m := range l.modules {
		m.Release()
		delete(l.modules, src)
	}
	l.destroyed = true
}

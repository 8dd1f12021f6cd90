package gpucache

import (
	"log/slog"

	"github.com/gogpu/gputypes"
)

// Default configuration values.
const (
	// DefaultUniformAlignment matches the WebGPU default for
	// minUniformBufferOffsetAlignment.
	DefaultUniformAlignment = 256

	// DefaultUniformArenaSize is the size of each uniform arena buffer.
	DefaultUniformArenaSize = 64 << 10

	// DefaultVertexAlignment keeps vertex uploads on copy boundaries.
	DefaultVertexAlignment = 4

	// DefaultVertexArenaSize holds 2048 vertices of 32 bytes.
	DefaultVertexArenaSize = 2048 * 32
)

// Option configures a Context during creation.
//
// Example:
//
//	ctx, err := gpucache.New(device,
//	    gpucache.WithUniformAlignment(limits.MinUniformBufferOffsetAlignment),
//	    gpucache.WithLabel("editor"),
//	)
type Option func(*Config)

// Config holds Context configuration. The zero value is not useful; start
// from DefaultConfig.
type Config struct {
	// Label prefixes the debug labels of objects the Context creates.
	Label string

	// UniformAlignment is the offset alignment of the uniform arena.
	UniformAlignment uint64

	// UniformArenaSize is the capacity of each uniform arena buffer.
	UniformArenaSize uint64

	// VertexAlignment is the offset alignment of the vertex arena.
	VertexAlignment uint64

	// VertexArenaSize is the capacity of each vertex arena buffer.
	VertexArenaSize uint64

	// ColorFormat is the surface format pipelines usually target.
	ColorFormat gputypes.TextureFormat

	// NativeWGSL hands WGSL to the device without compiling to SPIR-V.
	NativeWGSL bool

	// Queue is used by the Upload helpers. Optional.
	Queue Queue

	// Logger, when non-nil, is installed with SetLogger.
	Logger *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Label:            "gpucache",
		UniformAlignment: DefaultUniformAlignment,
		UniformArenaSize: DefaultUniformArenaSize,
		VertexAlignment:  DefaultVertexAlignment,
		VertexArenaSize:  DefaultVertexArenaSize,
		ColorFormat:      gputypes.TextureFormatBGRA8Unorm,
	}
}

// WithUniformAlignment sets the uniform arena alignment. Pass the device's
// minUniformBufferOffsetAlignment limit.
func WithUniformAlignment(alignment uint64) Option {
	return func(c *Config) {
		c.UniformAlignment = alignment
	}
}

// WithUniformArenaSize sets the capacity of each uniform arena buffer.
func WithUniformArenaSize(size uint64) Option {
	return func(c *Config) {
		c.UniformArenaSize = size
	}
}

// WithVertexArenaSize sets the capacity of each vertex arena buffer.
func WithVertexArenaSize(size uint64) Option {
	return func(c *Config) {
		c.VertexArenaSize = size
	}
}

// WithColorFormat sets the default color target format.
func WithColorFormat(format gputypes.TextureFormat) Option {
	return func(c *Config) {
		c.ColorFormat = format
	}
}

// WithQueue sets the queue used by the Upload helpers.
func WithQueue(q Queue) Option {
	return func(c *Config) {
		c.Queue = q
	}
}

// WithLabel sets the label prefix for created objects.
func WithLabel(label string) Option {
	return func(c *Config) {
		c.Label = label
	}
}

// WithLogger installs l as the package logger when the Context is created.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithNativeWGSL makes the shader library pass WGSL through unchanged.
func WithNativeWGSL() Option {
	return func(c *Config) {
		c.NativeWGSL = true
	}
}

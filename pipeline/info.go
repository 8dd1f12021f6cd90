package pipeline

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/handle"
	"github.com/gogpu/gpucache/internal/keyenc"
)

// Default entry points used when RenderPipelineInfo leaves them empty.
const (
	DefaultVertexEntry   = "vs_main"
	DefaultFragmentEntry = "fs_main"
)

// RenderPipelineInfo describes a render pipeline by the state that
// distinguishes one cached pipeline from another.
type RenderPipelineInfo struct {
	// Label is an optional debug name. Not part of the key.
	Label string

	// VS and FS are the vertex and fragment shader modules.
	VS handle.Handle[hal.ShaderModule]
	FS handle.Handle[hal.ShaderModule]

	// VSEntry and FSEntry default to vs_main and fs_main.
	VSEntry string
	FSEntry string

	// Samples is the MSAA sample count. Zero means 1.
	Samples uint32

	// Format is the color target format.
	Format gputypes.TextureFormat

	// Blend is the color blend state. Nil replaces the destination.
	Blend *gputypes.BlendState

	// Depth enables depth testing and writes against DepthFormat.
	Depth bool

	// DepthFormat defaults to Depth32Float when Depth is set.
	DepthFormat gputypes.TextureFormat

	// Vertices enables the vertex buffer described by VertexLayout. When
	// false the vertex shader generates its own positions.
	Vertices bool

	// Topology defaults to the triangle list.
	Topology gputypes.PrimitiveTopology

	// VertexLayout is used when Vertices is set. A zero ArrayStride selects
	// DefaultVertexLayout.
	VertexLayout gputypes.VertexBufferLayout
}

// DefaultVertexLayout is a 32-byte vertex: vec2 position, vec2 uv and
// vec4 color at shader locations 0, 1 and 2.
func DefaultVertexLayout() gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: 32,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 2},
		},
	}
}

// normalized returns a copy with defaults filled in, so that an explicit
// default and an omitted one share a cache entry.
func (info RenderPipelineInfo) normalized() RenderPipelineInfo {
	if info.VSEntry == "" {
		info.VSEntry = DefaultVertexEntry
	}
	if info.FSEntry == "" {
		info.FSEntry = DefaultFragmentEntry
	}
	if info.Samples == 0 {
		info.Samples = 1
	}
	if info.Blend != nil {
		b := *info.Blend
		info.Blend = &b
	}
	if info.Depth {
		if info.DepthFormat == gputypes.TextureFormatUndefined {
			info.DepthFormat = gputypes.TextureFormatDepth32Float
		}
	} else {
		info.DepthFormat = gputypes.TextureFormatUndefined
	}
	if info.Vertices {
		if info.VertexLayout.ArrayStride == 0 {
			info.VertexLayout = DefaultVertexLayout()
		}
	} else {
		info.VertexLayout = gputypes.VertexBufferLayout{}
	}
	return info
}

// key encodes a normalized info built against the layout with id layoutID.
//
//nolint:gosec // G115: attribute count is bounded by device limits
func (info RenderPipelineInfo) key(layoutID uint64) string {
	var k keyenc.Builder
	k.Uint64(layoutID)
	k.Uint64(info.VS.ID())
	k.Uint64(info.FS.ID())
	k.String(info.VSEntry)
	k.String(info.FSEntry)
	k.Uint32(info.Samples)
	k.Uint32(uint32(info.Format))

	k.Bool(info.Blend != nil)
	if b := info.Blend; b != nil {
		k.Uint32(uint32(b.Color.SrcFactor))
		k.Uint32(uint32(b.Color.DstFactor))
		k.Uint32(uint32(b.Color.Operation))
		k.Uint32(uint32(b.Alpha.SrcFactor))
		k.Uint32(uint32(b.Alpha.DstFactor))
		k.Uint32(uint32(b.Alpha.Operation))
	}

	k.Bool(info.Depth)
	k.Uint32(uint32(info.DepthFormat))
	k.Bool(info.Vertices)
	k.Uint32(uint32(info.Topology))

	vl := &info.VertexLayout
	k.Uint64(vl.ArrayStride)
	k.Uint32(uint32(vl.StepMode))
	k.Uint32(uint32(len(vl.Attributes)))
	for i := range vl.Attributes {
		attr := &vl.Attributes[i]
		k.Uint32(attr.ShaderLocation)
		k.Uint32(uint32(attr.Format))
		k.Uint64(attr.Offset)
	}
	return k.Key()
}

// descriptor builds the device descriptor for a normalized info.
func (info RenderPipelineInfo) descriptor(layout hal.PipelineLayout) *hal.RenderPipelineDescriptor {
	desc := &hal.RenderPipelineDescriptor{
		Label:  info.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     info.VS.Value(),
			EntryPoint: info.VSEntry,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  info.Topology,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: info.Samples,
			Mask:  0xFFFFFFFF,
		},
		Fragment: &hal.FragmentState{
			Module:     info.FS.Value(),
			EntryPoint: info.FSEntry,
			Targets: []gputypes.ColorTargetState{{
				Format:    info.Format,
				Blend:     info.Blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	}
	if info.Vertices {
		desc.Vertex.Buffers = []gputypes.VertexBufferLayout{info.VertexLayout}
	}
	if info.Depth {
		keep := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            info.DepthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      keep,
			StencilBack:       keep,
		}
	}
	return desc
}

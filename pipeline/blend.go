package pipeline

import "github.com/gogpu/gputypes"

// Blend presets. Each call returns a fresh value; pipelines are keyed by
// the blend factors, not by the pointer.

// BlendAlpha blends straight (non-premultiplied) alpha over the target.
func BlendAlpha() *gputypes.BlendState {
	b := gputypes.BlendStateAlpha()
	return &b
}

// BlendPremultiplied blends premultiplied alpha over the target.
func BlendPremultiplied() *gputypes.BlendState {
	b := gputypes.BlendStatePremultiplied()
	return &b
}

// BlendAdditive adds the source to the target.
func BlendAdditive() *gputypes.BlendState {
	add := gputypes.BlendComponent{
		SrcFactor: gputypes.BlendFactorOne,
		DstFactor: gputypes.BlendFactorOne,
		Operation: gputypes.BlendOperationAdd,
	}
	return &gputypes.BlendState{Color: add, Alpha: add}
}

// BlendReplace disables blending. It returns nil, which is how a
// RenderPipelineInfo spells "no blend state".
func BlendReplace() *gputypes.BlendState { return nil }

// Package nulldevice provides an in-memory stand-in for a GPU device.
//
// Every Create call returns a fresh *Object and counts it; nothing touches
// real hardware. The benchmark command runs its synthetic workload against
// it and the package tests use it to observe cache misses.
package nulldevice

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// Kind identifies the type of object a Device created.
type Kind uint8

// Object kinds.
const (
	KindBuffer Kind = iota
	KindBindGroupLayout
	KindBindGroup
	KindPipelineLayout
	KindRenderPipeline
	KindShaderModule
	kindCount
)

var kindNames = [kindCount]string{
	KindBuffer:          "buffer",
	KindBindGroupLayout: "bind_group_layout",
	KindBindGroup:       "bind_group",
	KindPipelineLayout:  "pipeline_layout",
	KindRenderPipeline:  "render_pipeline",
	KindShaderModule:    "shader_module",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Object is the value returned for every created resource. It satisfies
// the hal resource interfaces.
type Object struct {
	Kind      Kind
	Label     string
	Serial    uint64
	Size      uint64
	Destroyed bool
}

// Destroy implements hal.Resource.
func (o *Object) Destroy() { o.Destroyed = true }

// NativeHandle implements hal.NativeHandle.
func (o *Object) NativeHandle() uintptr { return uintptr(o.Serial) }

// Device counts object creation and destruction. Not safe for concurrent
// use.
type Device struct {
	serial    uint64
	created   [kindCount]int
	destroyed [kindCount]int
	fail      [kindCount]error

	// Last descriptors seen, for assertions.
	LastBuffer          *hal.BufferDescriptor
	LastBindGroupLayout *hal.BindGroupLayoutDescriptor
	LastBindGroup       *hal.BindGroupDescriptor
	LastPipelineLayout  *hal.PipelineLayoutDescriptor
	LastRenderPipeline  *hal.RenderPipelineDescriptor
	LastShaderModule    *hal.ShaderModuleDescriptor
}

// New returns an empty Device.
func New() *Device { return &Device{} }

// Created returns how many objects of kind k were created.
func (d *Device) Created(k Kind) int { return d.created[k] }

// Destroyed returns how many objects of kind k were destroyed.
func (d *Device) Destroyed(k Kind) int { return d.destroyed[k] }

// Live returns created minus destroyed for kind k.
func (d *Device) Live(k Kind) int { return d.created[k] - d.destroyed[k] }

// FailWith makes every subsequent creation of kind k return err.
// Pass nil to clear.
func (d *Device) FailWith(k Kind, err error) { d.fail[k] = err }

func (d *Device) create(k Kind, label string, size uint64) (*Object, error) {
	if err := d.fail[k]; err != nil {
		return nil, err
	}
	d.serial++
	d.created[k]++
	return &Object{Kind: k, Label: label, Serial: d.serial, Size: size}, nil
}

func (d *Device) destroy(k Kind, v any) {
	d.destroyed[k]++
	if o, ok := v.(*Object); ok {
		o.Destroy()
	}
}

// CreateBuffer implements hal.Device.
func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.LastBuffer = desc
	o, err := d.create(KindBuffer, desc.Label, desc.Size)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// DestroyBuffer implements hal.Device.
func (d *Device) DestroyBuffer(b hal.Buffer) { d.destroy(KindBuffer, b) }

// CreateBindGroupLayout implements hal.Device.
func (d *Device) CreateBindGroupLayout(desc *hal.BindGroupLayoutDescriptor) (hal.BindGroupLayout, error) {
	d.LastBindGroupLayout = desc
	o, err := d.create(KindBindGroupLayout, desc.Label, 0)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// DestroyBindGroupLayout implements hal.Device.
func (d *Device) DestroyBindGroupLayout(l hal.BindGroupLayout) { d.destroy(KindBindGroupLayout, l) }

// CreateBindGroup implements hal.Device.
func (d *Device) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	d.LastBindGroup = desc
	o, err := d.create(KindBindGroup, desc.Label, 0)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// DestroyBindGroup implements hal.Device.
func (d *Device) DestroyBindGroup(g hal.BindGroup) { d.destroy(KindBindGroup, g) }

// CreatePipelineLayout implements hal.Device.
func (d *Device) CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error) {
	d.LastPipelineLayout = desc
	o, err := d.create(KindPipelineLayout, desc.Label, 0)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// DestroyPipelineLayout implements hal.Device.
func (d *Device) DestroyPipelineLayout(l hal.PipelineLayout) { d.destroy(KindPipelineLayout, l) }

// CreateRenderPipeline implements hal.Device.
func (d *Device) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	d.LastRenderPipeline = desc
	o, err := d.create(KindRenderPipeline, desc.Label, 0)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// DestroyRenderPipeline implements hal.Device.
func (d *Device) DestroyRenderPipeline(p hal.RenderPipeline) { d.destroy(KindRenderPipeline, p) }

// CreateShaderModule implements hal.Device.
func (d *Device) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	d.LastShaderModule = desc
	o, err := d.create(KindShaderModule, desc.Label, 0)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// DestroyShaderModule implements hal.Device.
func (d *Device) DestroyShaderModule(m hal.ShaderModule) { d.destroy(KindShaderModule, m) }

// Write records one Queue.WriteBuffer call.
type Write struct {
	Buffer hal.Buffer
	Offset uint64
	Data   []byte
}

// Queue records buffer writes. It implements the WriteBuffer part of
// hal.Queue.
type Queue struct {
	Writes []Write
	fail   error
}

// FailWith makes every subsequent write return err. Pass nil to clear.
func (q *Queue) FailWith(err error) { q.fail = err }

// WriteBuffer implements hal.Queue.
func (q *Queue) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error {
	if q.fail != nil {
		return q.fail
	}
	q.Writes = append(q.Writes, Write{Buffer: buffer, Offset: offset, Data: append([]byte(nil), data...)})
	return nil
}

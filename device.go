package gpucache

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/gpucache/arena"
	"github.com/gogpu/gpucache/bindgroup"
	"github.com/gogpu/gpucache/pipeline"
	"github.com/gogpu/gpucache/shader"
)

// Device is the object-creation capability a Context sits in front of.
// hal.Device satisfies it.
type Device interface {
	arena.BufferAllocator
	bindgroup.Device
	pipeline.Device
	shader.Device
}

// Queue writes data into buffers. hal.Queue satisfies it.
type Queue = arena.BufferWriter

// halProvider is implemented by device providers that expose their HAL
// objects.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// deviceFromProvider extracts the device and queue from a provider. The
// HAL accessors are preferred; Device and Queue are tried as a fallback.
// The queue may be nil.
func deviceFromProvider(provider gpucontext.DeviceProvider) (Device, Queue, error) {
	var rawDevice, rawQueue any
	if hp, ok := provider.(halProvider); ok {
		rawDevice, rawQueue = hp.HalDevice(), hp.HalQueue()
	} else {
		rawDevice, rawQueue = provider.Device(), provider.Queue()
	}

	device, ok := rawDevice.(Device)
	if !ok {
		return nil, nil, ErrNoHALDevice
	}
	queue, _ := rawQueue.(Queue)
	return device, queue, nil
}

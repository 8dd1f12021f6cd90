// Package arena provides a growing bump allocator over GPU buffers.
//
// The allocator is:
//   - linear: a cursor moves forward inside each buffer; individual
//     allocations cannot be freed, only the whole arena at once;
//   - growing: when no buffer has room, a new buffer is created from the
//     same descriptor;
//   - aligned: every offset is a multiple of the arena alignment, which
//     matters for dynamic offsets into uniform buffers.
//
// Buffers are never released or shrunk before Destroy, so capacity is a
// high-water mark reused across frames.
//
// An Arena is not safe for concurrent use.
package arena

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/handle"
	"github.com/gogpu/gpucache/internal/logging"
)

// Arena errors.
var (
	// ErrNilDevice is returned when creating an arena without a device.
	ErrNilDevice = errors.New("arena: device is nil")

	// ErrInvalidAlignment is returned for a zero or non power of two alignment.
	ErrInvalidAlignment = errors.New("arena: alignment must be a non-zero power of two")

	// ErrInvalidCapacity is returned when the buffer template has zero size.
	ErrInvalidCapacity = errors.New("arena: buffer size must be non-zero")

	// ErrStaleAllocation is returned by Check for an allocation made before
	// the most recent Free.
	ErrStaleAllocation = errors.New("arena: allocation predates the last Free")

	// ErrForeignAllocation is returned by Check for an allocation whose
	// buffer does not belong to the arena.
	ErrForeignAllocation = errors.New("arena: allocation does not belong to this arena")

	// ErrDestroyed is returned when using an arena after Destroy.
	ErrDestroyed = errors.New("arena: arena destroyed")
)

// BufferAllocator is the part of a device the arena needs.
// hal.Device satisfies it.
type BufferAllocator interface {
	CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error)
	DestroyBuffer(buffer hal.Buffer)
}

// Allocation is a byte range lease inside one of the arena's buffers.
// It is valid until the arena's next Free.
type Allocation struct {
	// Buffer is the backing buffer. The handle is borrowed from the arena.
	Buffer handle.Handle[hal.Buffer]

	// Offset is the byte offset of the range; a multiple of the alignment.
	Offset uint64

	// Size is the aligned size of the range.
	Size uint64

	// Epoch is the arena epoch the allocation was made in.
	Epoch uint64
}

// Binding returns a buffer binding covering the allocation.
func (a Allocation) Binding() gputypes.BufferBinding {
	return gputypes.BufferBinding{
		Buffer: a.Buffer.Value().NativeHandle(),
		Offset: a.Offset,
		Size:   a.Size,
	}
}

// slot is one backing buffer and its bump cursor.
type slot struct {
	buffer handle.Handle[hal.Buffer]
	cursor uint64
}

// Arena is a growing, aligned bump allocator.
type Arena struct {
	device    BufferAllocator
	slots     []slot
	alignment uint64
	desc      hal.BufferDescriptor

	epoch       uint64
	allocations uint64
	grows       uint64
	destroyed   bool
}

// New creates an arena with exactly one backing buffer built from desc.
// desc.Size is the fixed capacity of every backing buffer.
func New(device BufferAllocator, alignment uint64, desc hal.BufferDescriptor) (*Arena, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if alignment == 0 || bits.OnesCount64(alignment) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAlignment, alignment)
	}
	if desc.Size == 0 {
		return nil, ErrInvalidCapacity
	}

	a := &Arena{
		device:    device,
		alignment: alignment,
		desc:      desc,
	}
	if err := a.grow(); err != nil {
		return nil, err
	}
	return a, nil
}

// Allocate reserves size bytes, rounded up to the alignment.
//
// Existing buffers are scanned in creation order and the first with room
// is used; if none has room a new buffer is appended. Allocate panics if
// the aligned size exceeds the capacity of a single buffer: that is a
// configuration error no amount of growing can satisfy.
func (a *Arena) Allocate(size uint64) (Allocation, error) {
	if a.destroyed {
		return Allocation{}, ErrDestroyed
	}

	capacity := a.desc.Size
	if size > capacity || Align(size, a.alignment) > capacity {
		panic(fmt.Sprintf("arena: allocation of %d bytes exceeds buffer capacity %d (alignment %d)",
			size, capacity, a.alignment))
	}
	size = Align(size, a.alignment)

	for i := range a.slots {
		s := &a.slots[i]
		if size <= capacity-s.cursor {
			return a.claim(s, size), nil
		}
	}

	if err := a.grow(); err != nil {
		return Allocation{}, err
	}
	return a.claim(&a.slots[len(a.slots)-1], size), nil
}

// BufferWriter copies bytes into a buffer. hal.Queue satisfies it.
type BufferWriter interface {
	WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error
}

// Upload allocates len(data) bytes and writes data into them. On a write
// failure the space stays reserved until the next Free.
func (a *Arena) Upload(queue BufferWriter, data []byte) (Allocation, error) {
	alloc, err := a.Allocate(uint64(len(data)))
	if err != nil {
		return Allocation{}, err
	}
	if len(data) > 0 {
		if err := queue.WriteBuffer(alloc.Buffer.Value(), alloc.Offset, data); err != nil {
			return Allocation{}, fmt.Errorf("arena: write %d bytes at %d: %w", len(data), alloc.Offset, err)
		}
	}
	return alloc, nil
}

func (a *Arena) claim(s *slot, size uint64) Allocation {
	offset := s.cursor
	s.cursor += size
	a.allocations++
	return Allocation{
		Buffer: s.buffer,
		Offset: offset,
		Size:   size,
		Epoch:  a.epoch,
	}
}

// Free resets every cursor to zero and starts a new epoch. All previous
// allocations become stale; the buffers are kept for reuse.
func (a *Arena) Free() {
	for i := range a.slots {
		a.slots[i].cursor = 0
	}
	a.epoch++
	a.allocations = 0
}

// Check reports whether alloc is still valid in the current epoch.
func (a *Arena) Check(alloc Allocation) error {
	if a.destroyed {
		return ErrDestroyed
	}
	owned := false
	for i := range a.slots {
		if a.slots[i].buffer.Equal(alloc.Buffer) {
			owned = true
			break
		}
	}
	if !owned {
		return ErrForeignAllocation
	}
	if alloc.Epoch != a.epoch {
		return fmt.Errorf("%w: allocation epoch %d, arena epoch %d", ErrStaleAllocation, alloc.Epoch, a.epoch)
	}
	return nil
}

// grow appends a fresh backing buffer.
func (a *Arena) grow() error {
	desc := a.desc
	buf, err := a.device.CreateBuffer(&desc)
	if err != nil {
		return fmt.Errorf("arena: create buffer %q: %w", a.desc.Label, err)
	}
	a.slots = append(a.slots, slot{buffer: handle.NewWithRelease(buf, a.device.DestroyBuffer)})
	if len(a.slots) > 1 {
		a.grows++
		logging.Logger().Debug("arena grew",
			"label", a.desc.Label,
			"buffers", len(a.slots),
			"capacity", a.desc.Size)
	}
	return nil
}

// Destroy releases every backing buffer. Further allocations fail with
// ErrDestroyed. Safe to call more than once.
func (a *Arena) Destroy() {
	if a.destroyed {
		return
	}
	for i := range a.slots {
		a.slots[i].buffer.Release()
	}
	a.slots = nil
	a.destroyed = true
}

// Alignment returns the arena alignment.
func (a *Arena) Alignment() uint64 { return a.alignment }

// Capacity returns the fixed size of each backing buffer.
func (a *Arena) Capacity() uint64 { return a.desc.Size }

// BufferCount returns the number of backing buffers.
func (a *Arena) BufferCount() int { return len(a.slots) }

// Epoch returns the current epoch; it advances on every Free.
func (a *Arena) Epoch() uint64 { return a.epoch }

// Stats describes arena usage.
type Stats struct {
	// Buffers is the number of backing buffers.
	Buffers int

	// Capacity is the size of one backing buffer.
	Capacity uint64

	// Reserved is the total capacity over all buffers.
	Reserved uint64

	// Used is the number of bytes handed out in the current epoch.
	Used uint64

	// Allocations is the number of allocations in the current epoch.
	Allocations uint64

	// Grows is the number of buffers added after the first.
	Grows uint64

	// Epoch is the current epoch.
	Epoch uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	util := 0.0
	if s.Reserved > 0 {
		util = float64(s.Used) / float64(s.Reserved) * 100
	}
	return fmt.Sprintf("Arena[%d buffers x %d B, %d/%d B used (%.1f%%), %d allocs, %d grows, epoch %d]",
		s.Buffers, s.Capacity, s.Used, s.Reserved, util, s.Allocations, s.Grows, s.Epoch)
}

// Stats returns current usage.
func (a *Arena) Stats() Stats {
	s := Stats{
		Buffers:     len(a.slots),
		Capacity:    a.desc.Size,
		Reserved:    uint64(len(a.slots)) * a.desc.Size,
		Allocations: a.allocations,
		Grows:       a.grows,
		Epoch:       a.epoch,
	}
	for i := range a.slots {
		s.Used += a.slots[i].cursor
	}
	return s
}

// Align rounds size up to a multiple of alignment, which must be a power
// of two.
func Align(size, alignment uint64) uint64 {
	return (size + alignment - 1) &^ (alignment - 1)
}

package arena

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache/internal/nulldevice"
)

func uniformDesc(size uint64) hal.BufferDescriptor {
	return hal.BufferDescriptor{
		Label: "test_uniforms",
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	}
}

func newTestArena(t *testing.T, alignment, capacity uint64) (*Arena, *nulldevice.Device) {
	t.Helper()
	dev := nulldevice.New()
	a, err := New(dev, alignment, uniformDesc(capacity))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, dev
}

func TestNew(t *testing.T) {
	a, dev := newTestArena(t, 256, 4096)

	if a.BufferCount() != 1 {
		t.Errorf("BufferCount = %d, want 1", a.BufferCount())
	}
	if dev.Created(nulldevice.KindBuffer) != 1 {
		t.Errorf("buffers created = %d, want 1", dev.Created(nulldevice.KindBuffer))
	}
	if dev.LastBuffer.Size != 4096 {
		t.Errorf("buffer size = %d, want 4096", dev.LastBuffer.Size)
	}
	if a.Alignment() != 256 || a.Capacity() != 4096 {
		t.Errorf("Alignment, Capacity = %d, %d; want 256, 4096", a.Alignment(), a.Capacity())
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name      string
		device    BufferAllocator
		alignment uint64
		size      uint64
		want      error
	}{
		{"nil device", nil, 256, 4096, ErrNilDevice},
		{"zero alignment", nulldevice.New(), 0, 4096, ErrInvalidAlignment},
		{"non power of two", nulldevice.New(), 48, 4096, ErrInvalidAlignment},
		{"zero capacity", nulldevice.New(), 256, 0, ErrInvalidCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.device, tt.alignment, uniformDesc(tt.size))
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewDeviceFailure(t *testing.T) {
	dev := nulldevice.New()
	boom := errors.New("out of memory")
	dev.FailWith(nulldevice.KindBuffer, boom)

	if _, err := New(dev, 256, uniformDesc(4096)); !errors.Is(err, boom) {
		t.Errorf("New() error = %v, want wrapped %v", err, boom)
	}
}

func TestAllocateScenario(t *testing.T) {
	a, dev := newTestArena(t, 256, 4096)

	first, err := a.Allocate(100)
	if err != nil {
		t.Fatal(err)
	}
	if first.Offset != 0 {
		t.Errorf("first offset = %d, want 0", first.Offset)
	}
	if first.Size != 256 {
		t.Errorf("first size = %d, want 256", first.Size)
	}

	second, err := a.Allocate(100)
	if err != nil {
		t.Fatal(err)
	}
	if second.Offset != 256 {
		t.Errorf("second offset = %d, want 256", second.Offset)
	}
	if !second.Buffer.Equal(first.Buffer) {
		t.Error("second allocation should share the first buffer")
	}

	// 14 more fill the first buffer exactly (16 * 256 = 4096).
	for range 14 {
		if _, err := a.Allocate(100); err != nil {
			t.Fatal(err)
		}
	}
	if a.BufferCount() != 1 {
		t.Fatalf("BufferCount = %d before overflow, want 1", a.BufferCount())
	}

	grown, err := a.Allocate(100)
	if err != nil {
		t.Fatal(err)
	}
	if a.BufferCount() != 2 {
		t.Errorf("BufferCount = %d after overflow, want 2", a.BufferCount())
	}
	if grown.Offset != 0 {
		t.Errorf("offset in new buffer = %d, want 0", grown.Offset)
	}
	if grown.Buffer.Equal(first.Buffer) {
		t.Error("overflow allocation should use a new buffer")
	}
	if dev.Created(nulldevice.KindBuffer) != 2 {
		t.Errorf("buffers created = %d, want 2", dev.Created(nulldevice.KindBuffer))
	}

	// The first buffer stays full until Free.
	next, err := a.Allocate(1)
	if err != nil {
		t.Fatal(err)
	}
	if !next.Buffer.Equal(grown.Buffer) || next.Offset != 256 {
		t.Errorf("next = (buffer %d, offset %d), want (buffer %d, offset 256)",
			next.Buffer.ID(), next.Offset, grown.Buffer.ID())
	}
}

func TestAllocateFirstFit(t *testing.T) {
	a, _ := newTestArena(t, 16, 64)

	big1, _ := a.Allocate(48) // buffer 0: 48/64
	big2, _ := a.Allocate(48) // buffer 1: 48/64
	if big1.Buffer.Equal(big2.Buffer) {
		t.Fatal("expected growth for second 48-byte allocation")
	}

	small, err := a.Allocate(16)
	if err != nil {
		t.Fatal(err)
	}
	if !small.Buffer.Equal(big1.Buffer) || small.Offset != 48 {
		t.Errorf("small = (buffer %d, offset %d), want first buffer at 48", small.Buffer.ID(), small.Offset)
	}
}

func TestAllocateExactCapacity(t *testing.T) {
	a, _ := newTestArena(t, 256, 4096)
	alloc, err := a.Allocate(4096)
	if err != nil {
		t.Fatal(err)
	}
	if alloc.Offset != 0 || alloc.Size != 4096 {
		t.Errorf("alloc = (%d, %d), want (0, 4096)", alloc.Offset, alloc.Size)
	}
}

func TestAllocateOversizedPanics(t *testing.T) {
	tests := []struct {
		name      string
		alignment uint64
		capacity  uint64
		size      uint64
	}{
		{"larger than capacity", 256, 4096, 4097},
		{"aligned size larger than capacity", 256, 4000, 3900},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestArena(t, tt.alignment, tt.capacity)
			defer func() {
				if recover() == nil {
					t.Errorf("Allocate(%d) did not panic", tt.size)
				}
			}()
			_, _ = a.Allocate(tt.size)
		})
	}
}

func TestAllocateGrowFailure(t *testing.T) {
	a, dev := newTestArena(t, 256, 256)
	if _, err := a.Allocate(256); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("device lost")
	dev.FailWith(nulldevice.KindBuffer, boom)
	if _, err := a.Allocate(1); !errors.Is(err, boom) {
		t.Errorf("Allocate error = %v, want %v", err, boom)
	}
	if a.BufferCount() != 1 {
		t.Errorf("BufferCount = %d after failed grow, want 1", a.BufferCount())
	}
}

func TestFreeReusesBuffers(t *testing.T) {
	a, dev := newTestArena(t, 256, 1024)

	// Peak demand: 3 buffers.
	for range 12 {
		if _, err := a.Allocate(256); err != nil {
			t.Fatal(err)
		}
	}
	if a.BufferCount() != 3 {
		t.Fatalf("BufferCount = %d, want 3", a.BufferCount())
	}

	for frame := range 5 {
		a.Free()
		for range 12 {
			if _, err := a.Allocate(200); err != nil {
				t.Fatal(err)
			}
		}
		if a.BufferCount() != 3 {
			t.Errorf("frame %d: BufferCount = %d, want 3", frame, a.BufferCount())
		}
	}
	if dev.Created(nulldevice.KindBuffer) != 3 {
		t.Errorf("buffers created = %d, want 3", dev.Created(nulldevice.KindBuffer))
	}
	if dev.Destroyed(nulldevice.KindBuffer) != 0 {
		t.Errorf("buffers destroyed = %d, want 0", dev.Destroyed(nulldevice.KindBuffer))
	}
}

func TestAllocationsAlignedAndDisjoint(t *testing.T) {
	const alignment, capacity = 64, 2048
	a, _ := newTestArena(t, alignment, capacity)
	rng := rand.New(rand.NewPCG(1, 2))

	type span struct{ start, end uint64 }
	for frame := range 4 {
		spans := make(map[uint64][]span)
		for range 200 {
			size := rng.Uint64N(capacity) + 1
			alloc, err := a.Allocate(size)
			if err != nil {
				t.Fatal(err)
			}
			if alloc.Offset%alignment != 0 {
				t.Fatalf("frame %d: offset %d not aligned to %d", frame, alloc.Offset, alignment)
			}
			if alloc.Offset+alloc.Size > capacity {
				t.Fatalf("frame %d: allocation [%d, %d) exceeds capacity", frame, alloc.Offset, alloc.Offset+alloc.Size)
			}
			id := alloc.Buffer.ID()
			s := span{alloc.Offset, alloc.Offset + alloc.Size}
			for _, other := range spans[id] {
				if s.start < other.end && other.start < s.end {
					t.Fatalf("frame %d: [%d, %d) overlaps [%d, %d) in buffer %d",
						frame, s.start, s.end, other.start, other.end, id)
				}
			}
			spans[id] = append(spans[id], s)
		}
		prev := a.BufferCount()
		a.Free()
		if a.BufferCount() != prev {
			t.Errorf("Free changed BufferCount from %d to %d", prev, a.BufferCount())
		}
	}
}

func TestCheckDetectsStaleAllocations(t *testing.T) {
	a, _ := newTestArena(t, 256, 4096)
	alloc, _ := a.Allocate(64)

	if err := a.Check(alloc); err != nil {
		t.Errorf("Check in same epoch = %v, want nil", err)
	}

	a.Free()
	if err := a.Check(alloc); !errors.Is(err, ErrStaleAllocation) {
		t.Errorf("Check after Free = %v, want ErrStaleAllocation", err)
	}
	if a.Epoch() != alloc.Epoch+1 {
		t.Errorf("Epoch = %d, want %d", a.Epoch(), alloc.Epoch+1)
	}

	other, _ := newTestArena(t, 256, 4096)
	foreign, _ := other.Allocate(64)
	if err := a.Check(foreign); !errors.Is(err, ErrForeignAllocation) {
		t.Errorf("Check foreign = %v, want ErrForeignAllocation", err)
	}
}

func TestDestroy(t *testing.T) {
	a, dev := newTestArena(t, 256, 512)
	_, _ = a.Allocate(512)
	_, _ = a.Allocate(512)

	a.Destroy()
	a.Destroy()

	if got := dev.Destroyed(nulldevice.KindBuffer); got != 2 {
		t.Errorf("buffers destroyed = %d, want 2", got)
	}
	if _, err := a.Allocate(1); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Allocate after Destroy = %v, want ErrDestroyed", err)
	}
}

func TestStats(t *testing.T) {
	a, _ := newTestArena(t, 256, 1024)
	_, _ = a.Allocate(100)
	_, _ = a.Allocate(1000)

	s := a.Stats()
	if s.Buffers != 2 || s.Grows != 1 {
		t.Errorf("Buffers, Grows = %d, %d; want 2, 1", s.Buffers, s.Grows)
	}
	if s.Used != 256+1024 {
		t.Errorf("Used = %d, want %d", s.Used, 256+1024)
	}
	if s.Reserved != 2048 {
		t.Errorf("Reserved = %d, want 2048", s.Reserved)
	}
	if s.Allocations != 2 {
		t.Errorf("Allocations = %d, want 2", s.Allocations)
	}
	if s.String() == "" {
		t.Error("String should not be empty")
	}

	a.Free()
	if s := a.Stats(); s.Used != 0 || s.Allocations != 0 || s.Epoch != 1 {
		t.Errorf("after Free: Used %d, Allocations %d, Epoch %d; want 0, 0, 1", s.Used, s.Allocations, s.Epoch)
	}
}

func TestAlign(t *testing.T) {
	tests := []struct{ size, alignment, want uint64 }{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{257, 256, 512},
		{7, 1, 7},
		{9, 4, 12},
	}
	for _, tt := range tests {
		if got := Align(tt.size, tt.alignment); got != tt.want {
			t.Errorf("Align(%d, %d) = %d, want %d", tt.size, tt.alignment, got, tt.want)
		}
	}
}

func TestAllocationBinding(t *testing.T) {
	a, _ := newTestArena(t, 256, 4096)
	_, _ = a.Allocate(10)
	alloc, _ := a.Allocate(10)

	b := alloc.Binding()
	if b.Offset != 256 || b.Size != 256 {
		t.Errorf("Binding offset, size = %d, %d; want 256, 256", b.Offset, b.Size)
	}
	if b.Buffer != alloc.Buffer.Value().NativeHandle() {
		t.Error("Binding buffer does not match allocation buffer")
	}
}

func TestUpload(t *testing.T) {
	a, _ := newTestArena(t, 256, 4096)
	queue := &nulldevice.Queue{}

	_, _ = a.Allocate(1)
	alloc, err := a.Upload(queue, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(queue.Writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(queue.Writes))
	}
	w := queue.Writes[0]
	if w.Offset != alloc.Offset || w.Offset != 256 {
		t.Errorf("write offset = %d, want %d", w.Offset, alloc.Offset)
	}
	if w.Buffer != alloc.Buffer.Value() {
		t.Error("write went to a different buffer")
	}
	if len(w.Data) != 4 || w.Data[3] != 4 {
		t.Errorf("write data = %v, want [1 2 3 4]", w.Data)
	}

	if _, err := a.Upload(queue, nil); err != nil {
		t.Errorf("empty Upload: %v", err)
	}
	if len(queue.Writes) != 1 {
		t.Error("empty Upload should not write")
	}

	boom := errors.New("queue lost")
	queue.FailWith(boom)
	if _, err := a.Upload(queue, []byte{1}); !errors.Is(err, boom) {
		t.Errorf("Upload error = %v, want %v", err, boom)
	}
}

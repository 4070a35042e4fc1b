// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"encoding/binary"
	"sync"
	"unsafe"
)

const maxAlignment = 1 << 31

// adjustmentWidth returns how many bytes before an aligned address are used to
// store the distance back to the raw address. The stored adjustment is at most
// width+alignment-1.
func adjustmentWidth(alignment uintptr) uintptr {
	switch {
	case alignment <= 1<<7:
		return 1
	case alignment <= 1<<15:
		return 2
	default:
		return 4
	}
}

func isPowerOfTwo(x uintptr) bool {
	return x != 0 && x&(x-1) == 0
}

func checkAlignment(alignment uintptr) {
	if !isPowerOfTwo(alignment) || alignment > maxAlignment {
		fatalf(ErrInvalidAlignment, "alignment %d is not a power of two in [1, %d]", alignment, uintptr(maxAlignment))
	}
}

// AcquireAligned requests raw memory from heap and returns the smallest
// address aligned to alignment that leaves room for the adjustment slot.
// The result must be given back with ReleaseAligned on the same heap.
func AcquireAligned(heap Heap, size, alignment uintptr) unsafe.Pointer {
	checkAlignment(alignment)
	if heap == nil {
		heap = DefaultHeap
	}

	width := adjustmentWidth(alignment)
	raw := heap.Alloc(size + alignment + width - 1)

	mask := alignment - 1
	rawAddress := uintptr(raw)
	adjustment := ((rawAddress + width + mask) &^ mask) - rawAddress
	if adjustment >= 1<<(8*width) {
		fatalf(ErrInvalidAlignment, "adjustment %d does not fit %d bytes", adjustment, width)
	}

	aligned := unsafe.Add(raw, adjustment)
	writeAdjustment(unsafe.Slice((*byte)(unsafe.Add(aligned, -int(width))), width), adjustment)

	if debugEnabled {
		blocks.register(aligned)
	}
	return aligned
}

// ReleaseAligned recovers the raw address of a block produced by
// AcquireAligned and frees it. Passing any other address is undefined; debug
// builds trap it.
func ReleaseAligned(heap Heap, ptr unsafe.Pointer, alignment uintptr) {
	checkAlignment(alignment)
	if heap == nil {
		heap = DefaultHeap
	}
	if debugEnabled {
		blocks.unregister(ptr)
	}

	width := adjustmentWidth(alignment)
	adjustment := readAdjustment(unsafe.Slice((*byte)(unsafe.Add(ptr, -int(width))), width))
	heap.Free(unsafe.Add(ptr, -int(adjustment)))
}

func writeAdjustment(slot []byte, adjustment uintptr) {
	switch len(slot) {
	case 1:
		slot[0] = byte(adjustment)
	case 2:
		binary.LittleEndian.PutUint16(slot, uint16(adjustment))
	default:
		binary.LittleEndian.PutUint32(slot, uint32(adjustment))
	}
}

func readAdjustment(slot []byte) uintptr {
	switch len(slot) {
	case 1:
		return uintptr(slot[0])
	case 2:
		return uintptr(binary.LittleEndian.Uint16(slot))
	default:
		return uintptr(binary.LittleEndian.Uint32(slot))
	}
}

// blockRegistry remembers live aligned blocks in debug builds.
type blockRegistry struct {
	mu   sync.Mutex
	live map[uintptr]struct{}
}

var blocks = &blockRegistry{live: make(map[uintptr]struct{})}

func (r *blockRegistry) register(ptr unsafe.Pointer) {
	r.mu.Lock()
	r.live[uintptr(ptr)] = struct{}{}
	r.mu.Unlock()
}

func (r *blockRegistry) unregister(ptr unsafe.Pointer) {
	r.mu.Lock()
	_, ok := r.live[uintptr(ptr)]
	delete(r.live, uintptr(ptr))
	r.mu.Unlock()
	if !ok {
		fatalf(ErrUnknownBlock, "%p", ptr)
	}
}

// AlignedBlock owns one aligned span until Release is called.
type AlignedBlock struct {
	ptr       unsafe.Pointer
	size      uintptr
	alignment uintptr
	heap      Heap
}

// AlignedBlockOption configures an AlignedBlock.
type AlignedBlockOption func(*AlignedBlock)

// WithHeap selects the heap the block is acquired from.
func WithHeap(h Heap) AlignedBlockOption {
	return func(b *AlignedBlock) {
		b.heap = h
	}
}

// NewAlignedBlock acquires size bytes aligned to alignment.
func NewAlignedBlock(size, alignment uintptr, opts ...AlignedBlockOption) *AlignedBlock {
	b := &AlignedBlock{
		size:      size,
		alignment: alignment,
		heap:      DefaultHeap,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.ptr = AcquireAligned(b.heap, size, alignment)
	return b
}

// Pointer returns the aligned start of the block.
func (b *AlignedBlock) Pointer() unsafe.Pointer {
	return b.ptr
}

func (b *AlignedBlock) Size() uintptr {
	return b.size
}

func (b *AlignedBlock) Alignment() uintptr {
	return b.alignment
}

// Bytes returns the block as a byte slice. It is only valid until Release.
func (b *AlignedBlock) Bytes() []byte {
	b.panicIfReleased()
	return unsafe.Slice((*byte)(b.ptr), b.size)
}

// Release gives the block back to its heap.
func (b *AlignedBlock) Release() {
	b.panicIfReleased()
	ReleaseAligned(b.heap, b.ptr, b.alignment)
	b.ptr = nil
}

func (b *AlignedBlock) panicIfReleased() {
	if b.ptr == nil {
		panic("arena: use after Release()")
	}
}

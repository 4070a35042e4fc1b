// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"unsafe"
)

// Heap is the system boundary: the only source of raw memory.
// Only AcquireAligned and the tracked entry points call it directly.
type Heap interface {
	// Alloc returns size bytes of raw memory. A failure is fatal.
	Alloc(size uintptr) unsafe.Pointer

	// Free gives memory obtained from Alloc back to the system.
	Free(ptr unsafe.Pointer)
}

// DefaultHeap is used whenever no Heap is configured.
var DefaultHeap Heap = GoHeap{}

// GoHeap takes memory from the Go runtime. Free is a no-op, the collector
// reclaims a span once nothing references it any more.
type GoHeap struct{}

// Alloc satisfies the Heap interface.
func (GoHeap) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		size = 1
	}
	buf := make([]byte, size)
	return unsafe.Pointer(unsafe.SliceData(buf))
}

// Free satisfies the Heap interface.
func (GoHeap) Free(unsafe.Pointer) {}

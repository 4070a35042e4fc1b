// SPDX-License-Identifier: Apache-2.0

// Package arena provides scope-bound manual memory management on top of a
// single pre-allocated span.
//
// An AlignedBlock acquires the span, a LinearAllocator bump-allocates from it
// and a ScopeStack ties a region of allocations to control flow:
//
//	block := arena.NewAlignedBlock(64<<10, 16)
//	defer block.Release()
//	alloc := arena.NewLinearAllocatorFromBlock(block)
//
//	scope := arena.NewScopeStack(alloc)
//	defer scope.Close() // finalizers run newest first, then the marker rewinds
//
//	buf := scope.AllocateRaw(4096)
//	obj := arena.AllocateObject[Header](scope)
//	res := arena.AllocateWithFinalizer[Handle](scope)
//
// Arena memory is not scanned by the garbage collector. Types placed in it
// must not contain Go pointers; debug builds (-tags debug) enforce this along
// with index checks and allocation tracking.
//
// Nothing in this package is safe for concurrent use except Pool.
package arena

import (
	"unsafe"
)

// DefaultAlignment is the allocation granularity of a LinearAllocator
// created without WithAlignment.
const DefaultAlignment = 16

// Marker is a snapshot of a LinearAllocator's bump position. It is only
// meaningful for the allocator that produced it.
type Marker uintptr

// AlignSize rounds size up to the next multiple of alignment, which must be a
// power of two.
func AlignSize(size, alignment uintptr) uintptr {
	return (size + alignment - 1) &^ (alignment - 1)
}

// sizeOf returns the natural size of T.
func sizeOf[T any]() uintptr {
	var x T
	return unsafe.Sizeof(x)
}

// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"runtime"
	"unsafe"
)

// DefaultTracker receives the tracked entry points' records in debug builds.
var DefaultTracker = NewAllocationTracker()

// TrackedAlloc returns size bytes from DefaultHeap. Debug builds record the
// caller's file and line with DefaultTracker.
func TrackedAlloc(size uintptr) unsafe.Pointer {
	ptr := DefaultHeap.Alloc(size)
	if debugEnabled {
		track(ptr, size)
	}
	return ptr
}

// TrackedFree gives memory from TrackedAlloc back to DefaultHeap.
func TrackedFree(ptr unsafe.Pointer) {
	if debugEnabled {
		DefaultTracker.Remove(ptr)
	}
	DefaultHeap.Free(ptr)
}

// TrackedNew allocates a zero T on the Go heap.
func TrackedNew[T any]() *T {
	p := new(T)
	if debugEnabled {
		track(unsafe.Pointer(p), sizeOf[T]())
	}
	return p
}

// TrackedDelete ends tracking of a value from TrackedNew.
func TrackedDelete[T any](p *T) {
	if debugEnabled {
		DefaultTracker.Remove(unsafe.Pointer(p))
	}
}

// track records the allocation against the caller of the exported entry point.
func track(ptr unsafe.Pointer, size uintptr) {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file = "unknown"
	}
	DefaultTracker.Add(ptr, file, line, size)
}

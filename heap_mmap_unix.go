// SPDX-License-Identifier: Apache-2.0

//go:build unix

package arena

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// MmapHeap hands out anonymous private mappings. The memory lives outside the
// Go heap and is only returned to the system by Free.
type MmapHeap struct {
	mu       sync.Mutex
	mappings map[uintptr][]byte
}

// NewMmapHeap returns a Heap backed by mmap(2).
func NewMmapHeap() Heap {
	return &MmapHeap{mappings: make(map[uintptr][]byte)}
}

// Alloc satisfies the Heap interface.
func (h *MmapHeap) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		size = 1
	}
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		Logger().Error("mmap failed", zap.Uint64("size", uint64(size)), zap.Error(err))
		panic(errors.Wrapf(err, "arena: cannot map %d bytes", size))
	}
	ptr := unsafe.Pointer(unsafe.SliceData(mem))

	h.mu.Lock()
	h.mappings[uintptr(ptr)] = mem
	h.mu.Unlock()
	return ptr
}

// Free satisfies the Heap interface.
func (h *MmapHeap) Free(ptr unsafe.Pointer) {
	h.mu.Lock()
	mem, ok := h.mappings[uintptr(ptr)]
	delete(h.mappings, uintptr(ptr))
	h.mu.Unlock()

	if !ok {
		fatalf(ErrUnknownBlock, "no mapping at %p", ptr)
	}
	if err := unix.Munmap(mem); err != nil {
		Logger().Error("munmap failed", zap.Error(err))
		panic(errors.Wrap(err, "arena: munmap"))
	}
}

// Mappings returns the number of live mappings.
func (h *MmapHeap) Mappings() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.mappings)
}

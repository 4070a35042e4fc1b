// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"unsafe"
)

// LinearAllocator hands out memory from a span it does not own by advancing a
// marker. Memory is only reclaimed by rewinding the marker.
type LinearAllocator struct {
	base      unsafe.Pointer // keeps the span reachable
	size      uintptr
	offset    uintptr // current marker, relative to base
	peak      uintptr // tracks the highest offset ever reached
	alignment uintptr
	scopes    []*ScopeStack // open scopes, innermost last
}

// LinearAllocatorOption represents a configuration option for a linear allocator.
type LinearAllocatorOption func(*LinearAllocator)

// WithAlignment sets the granularity every allocation size is rounded up to.
// It must be a power of two; values below 8 are raised to 8.
func WithAlignment(alignment uintptr) LinearAllocatorOption {
	return func(a *LinearAllocator) {
		a.alignment = alignment
	}
}

// minAlignment is the smallest allocation granularity. Every object and
// finalizer node starts on a multiple of it, which covers the alignment of
// every Go type without pointers, 64-bit atomics included.
const minAlignment = 8

// NewLinearAllocator creates an allocator over size bytes starting at base.
// base must be aligned to the allocator's alignment and must stay valid for
// the allocator's lifetime. Alignments below 8 are raised to 8.
func NewLinearAllocator(base unsafe.Pointer, size uintptr, opts ...LinearAllocatorOption) *LinearAllocator {
	a := newLinearAllocator(DefaultAlignment, opts)
	if uintptr(base)&(a.alignment-1) != 0 {
		fatalf(ErrInvalidAlignment, "base %p is not aligned to %d", base, a.alignment)
	}
	a.base = base
	a.size = size
	return a
}

// NewLinearAllocatorFromBlock creates an allocator over an AlignedBlock. The
// allocator alignment defaults to the block alignment, clamped to
// [8, DefaultAlignment]. When the block is aligned more loosely than the
// allocator, the leading bytes up to the first aligned address are skipped.
func NewLinearAllocatorFromBlock(b *AlignedBlock, opts ...LinearAllocatorOption) *LinearAllocator {
	a := newLinearAllocator(min(b.Alignment(), DefaultAlignment), opts)

	base, size := b.Pointer(), b.Size()
	pad := AlignSize(uintptr(base), a.alignment) - uintptr(base)
	if pad >= size {
		// Too small to hold a single aligned byte
		a.base = base
		return a
	}
	a.base = unsafe.Add(base, pad)
	a.size = size - pad
	return a
}

func newLinearAllocator(alignment uintptr, opts []LinearAllocatorOption) *LinearAllocator {
	a := &LinearAllocator{alignment: alignment}
	for _, opt := range opts {
		opt(a)
	}
	checkAlignment(a.alignment)
	a.alignment = max(a.alignment, minAlignment)
	return a
}

// Allocate returns size bytes rounded up to the alignment. Running past the
// end of the span is fatal and leaves the marker untouched.
func (a *LinearAllocator) Allocate(size uintptr) unsafe.Pointer {
	aligned := AlignSize(size, a.alignment)
	if aligned < size || aligned > a.size-a.offset {
		fatalf(ErrArenaExhausted, "need %d bytes, %d of %d available", aligned, a.size-a.offset, a.size)
	}
	ptr := unsafe.Add(a.base, a.offset)
	a.offset += aligned
	if a.offset > a.peak {
		a.peak = a.offset
	}
	return ptr
}

// Rewind moves the marker back (or forward) to m. The caller guarantees that m
// came from this allocator and that nothing references memory past m.
func (a *LinearAllocator) Rewind(m Marker) {
	if m < a.Base() || m > a.End() {
		fatalf(ErrInvalidRewindTarget, "marker %#x outside [%#x, %#x]", uintptr(m), uintptr(a.Base()), uintptr(a.End()))
	}
	a.offset = uintptr(m) - uintptr(a.base)
}

// Reset rewinds to the base. It is fatal while scopes are open.
func (a *LinearAllocator) Reset() {
	if len(a.scopes) > 0 {
		fatalf(ErrScopeOrder, "reset with %d open scopes", len(a.scopes))
	}
	a.offset = 0
}

// Marker returns the current bump position.
func (a *LinearAllocator) Marker() Marker {
	return Marker(uintptr(a.base) + a.offset)
}

// Base returns the marker of an empty allocator.
func (a *LinearAllocator) Base() Marker {
	return Marker(uintptr(a.base))
}

// End returns the marker of a full allocator.
func (a *LinearAllocator) End() Marker {
	return Marker(uintptr(a.base) + a.size)
}

func (a *LinearAllocator) Alignment() uintptr {
	return a.alignment
}

// Len returns the number of bytes between base and marker.
func (a *LinearAllocator) Len() int {
	return int(a.offset)
}

// Cap returns the size of the span.
func (a *LinearAllocator) Cap() int {
	return int(a.size)
}

// Available returns the number of bytes left before the end.
func (a *LinearAllocator) Available() int {
	return int(a.size - a.offset)
}

// Peak returns the highest marker offset seen so far.
// It survives Rewind and Reset.
func (a *LinearAllocator) Peak() int {
	return int(a.peak)
}

// pointerAt and offsetOf translate between arena offsets and addresses
// without round-tripping through uintptr.
func (a *LinearAllocator) pointerAt(off uintptr) unsafe.Pointer {
	return unsafe.Add(a.base, off)
}

func (a *LinearAllocator) offsetOf(p unsafe.Pointer) uintptr {
	return uintptr(p) - uintptr(a.base)
}

func (a *LinearAllocator) pushScope(s *ScopeStack) {
	a.scopes = append(a.scopes, s)
}

func (a *LinearAllocator) innermost() *ScopeStack {
	if len(a.scopes) == 0 {
		return nil
	}
	return a.scopes[len(a.scopes)-1]
}

func (a *LinearAllocator) popScope(s *ScopeStack) {
	if a.innermost() != s {
		fatalf(ErrScopeOrder, "closing scope %p while %d scopes are open", s, len(a.scopes))
	}
	a.scopes[len(a.scopes)-1] = nil
	a.scopes = a.scopes[:len(a.scopes)-1]
}

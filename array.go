// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"iter"
	"unsafe"
)

// Trait controls how the elements of an Array are allocated and how far apart
// consecutive elements are.
type Trait[T any] interface {
	// AllocateArray allocates count elements from s and returns the address of
	// the first one.
	AllocateArray(s *ScopeStack, count int) unsafe.Pointer

	// Stride returns the byte distance between consecutive elements.
	Stride(s *ScopeStack) uintptr
}

// RawTrait allocates one uninitialized buffer. Elements are packed at their
// natural size and never constructed or finalized.
type RawTrait[T any] struct{}

func (RawTrait[T]) AllocateArray(s *ScopeStack, count int) unsafe.Pointer {
	assertPointerFree[T]()
	return s.AllocateRaw(uintptr(count) * sizeOf[T]())
}

func (RawTrait[T]) Stride(*ScopeStack) uintptr {
	return sizeOf[T]()
}

// ObjectTrait constructs every element with AllocateObject.
type ObjectTrait[T any] struct{}

func (ObjectTrait[T]) AllocateArray(s *ScopeStack, count int) unsafe.Pointer {
	var first unsafe.Pointer
	for i := 0; i < count; i++ {
		p := unsafe.Pointer(AllocateObject[T](s))
		if i == 0 {
			first = p
		}
	}
	return first
}

func (ObjectTrait[T]) Stride(s *ScopeStack) uintptr {
	return AlignSize(sizeOf[T](), s.Alignment())
}

// FinalizerTrait constructs every element with AllocateWithFinalizer, so each
// element is preceded by its finalizer node.
type FinalizerTrait[T any, PT Finalizable[T]] struct{}

func (FinalizerTrait[T, PT]) AllocateArray(s *ScopeStack, count int) unsafe.Pointer {
	var first unsafe.Pointer
	for i := 0; i < count; i++ {
		p := unsafe.Pointer(AllocateWithFinalizer[T, PT](s))
		if i == 0 {
			first = p
		}
	}
	return first
}

func (FinalizerTrait[T, PT]) Stride(s *ScopeStack) uintptr {
	return s.finalizerSize() + AlignSize(sizeOf[T](), s.Alignment())
}

// Array is a fixed-length sequence of T living in a scope.
type Array[T any] struct {
	base   unsafe.Pointer
	count  int
	stride uintptr
}

// NewArray allocates count elements from s using trait.
func NewArray[T any](s *ScopeStack, count int, trait Trait[T]) *Array[T] {
	if count < 0 {
		fatalf(ErrIndexOutOfRange, "negative array length %d", count)
	}
	return &Array[T]{
		base:   trait.AllocateArray(s, count),
		count:  count,
		stride: trait.Stride(s),
	}
}

// NewRawArray allocates count uninitialized elements.
func NewRawArray[T any](s *ScopeStack, count int) *Array[T] {
	return NewArray[T](s, count, RawTrait[T]{})
}

// NewObjectArray allocates count constructed elements.
func NewObjectArray[T any](s *ScopeStack, count int) *Array[T] {
	return NewArray[T](s, count, ObjectTrait[T]{})
}

// NewFinalizerArray allocates count constructed elements which are finalized
// when s closes, last element first.
func NewFinalizerArray[T any, PT Finalizable[T]](s *ScopeStack, count int) *Array[T] {
	return NewArray[T](s, count, FinalizerTrait[T, PT]{})
}

// At returns the i-th element. The index is only checked in debug builds.
func (a *Array[T]) At(i int) *T {
	if debugEnabled && (i < 0 || i >= a.count) {
		fatalf(ErrIndexOutOfRange, "index %d, length %d", i, a.count)
	}
	return (*T)(unsafe.Add(a.base, uintptr(i)*a.stride))
}

// Len returns the number of elements.
func (a *Array[T]) Len() int {
	return a.count
}

// Stride returns the byte distance between consecutive elements.
func (a *Array[T]) Stride() uintptr {
	return a.stride
}

// All iterates over the elements in index order.
func (a *Array[T]) All() iter.Seq2[int, *T] {
	return func(yield func(int, *T) bool) {
		for i := 0; i < a.count; i++ {
			if !yield(i, a.At(i)) {
				return
			}
		}
	}
}

// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"unsafe"
)

// Initializer is implemented by types that need more than the zero value
// when they are constructed inside a scope.
type Initializer interface {
	Init()
}

// Finalizable constrains PT to *T with a Finalize method, which a ScopeStack
// calls before the object's memory is reclaimed.
type Finalizable[T any] interface {
	*T
	Finalize()
}

// finalizerNode precedes every object allocated with a finalizer. It is
// written into arena memory, so it holds no Go pointers: action indexes the
// scope's finalize table and prev is the arena offset of the previously
// registered node.
type finalizerNode struct {
	action uint32
	prev   uintptr
}

const noFinalizer = ^uintptr(0)

// ScopeStack allocates from a LinearAllocator for the duration of one
// control-flow region. Close runs every registered finalizer, newest first,
// and rewinds the allocator to where it stood when the scope was created.
//
// Scopes over one allocator nest: only the innermost open scope may allocate
// or be closed.
type ScopeStack struct {
	allocator  *LinearAllocator
	base       Marker
	head       uintptr // arena offset of the newest finalizerNode
	finalizers []func(unsafe.Pointer)
	closed     bool
}

// NewScopeStack opens a scope over a. It becomes the innermost scope of a.
func NewScopeStack(a *LinearAllocator) *ScopeStack {
	s := &ScopeStack{
		allocator: a,
		base:      a.Marker(),
		head:      noFinalizer,
	}
	a.pushScope(s)
	return s
}

// WithScope runs fn inside a fresh scope over a and closes it afterwards,
// also when fn panics.
func WithScope(a *LinearAllocator, fn func(s *ScopeStack)) {
	s := NewScopeStack(a)
	defer s.Close()
	fn(s)
}

// AllocateRaw returns size bytes that are neither initialized nor finalized.
func (s *ScopeStack) AllocateRaw(size uintptr) unsafe.Pointer {
	s.checkUsable()
	return s.allocator.Allocate(size)
}

// AllocateObject constructs a T in the scope without registering a finalizer.
// Use it for types whose state needs no teardown.
func AllocateObject[T any](s *ScopeStack) *T {
	assertPointerFree[T]()
	s.checkUsable()
	return construct[T](s.allocator.Allocate(sizeOf[T]()))
}

// AllocateWithFinalizer constructs a T in the scope and arranges for its
// Finalize method to run when the scope closes.
func AllocateWithFinalizer[T any, PT Finalizable[T]](s *ScopeStack) *T {
	return allocateWithFinalizer[T](s, func(p unsafe.Pointer) {
		PT((*T)(p)).Finalize()
	})
}

// AllocateWithFinalizerFunc is AllocateWithFinalizer with an explicit
// finalize action.
func AllocateWithFinalizerFunc[T any](s *ScopeStack, finalize func(*T)) *T {
	return allocateWithFinalizer[T](s, func(p unsafe.Pointer) {
		finalize((*T)(p))
	})
}

func allocateWithFinalizer[T any](s *ScopeStack, action func(unsafe.Pointer)) *T {
	assertPointerFree[T]()
	s.checkUsable()

	header := s.finalizerSize()
	block := s.allocator.Allocate(header + AlignSize(sizeOf[T](), s.allocator.alignment))

	// A panic in construct leaves the object unlinked: it is never finalized
	// and its bytes come back with the scope's rewind.
	obj := construct[T](unsafe.Add(block, header))

	node := (*finalizerNode)(block)
	node.action = uint32(len(s.finalizers))
	node.prev = s.head
	s.finalizers = append(s.finalizers, action)
	s.head = s.allocator.offsetOf(block)

	return obj
}

func construct[T any](p unsafe.Pointer) *T {
	obj := (*T)(p)
	var zero T
	*obj = zero
	if in, ok := any(obj).(Initializer); ok {
		in.Init()
	}
	return obj
}

// Close finalizes every object registered with this scope in reverse order of
// allocation and rewinds the allocator to the scope's base. Closing a scope
// that is not the innermost open scope is fatal. Close is a no-op on a closed
// scope.
//
// A panicking finalizer does not stop the others: the remaining ones still
// run and the allocator is rewound before the panic propagates.
func (s *ScopeStack) Close() {
	if s.closed {
		return
	}
	s.allocator.popScope(s)
	s.closed = true

	defer func() {
		s.finalizers = nil
		s.allocator.Rewind(s.base)
	}()
	defer func() {
		if s.head != noFinalizer {
			s.runFinalizers()
		}
	}()
	s.runFinalizers()
}

// runFinalizers walks the chain newest first. head is advanced before each
// action, so a panicking action is never run twice.
func (s *ScopeStack) runFinalizers() {
	header := s.finalizerSize()
	for s.head != noFinalizer {
		node := (*finalizerNode)(s.allocator.pointerAt(s.head))
		s.head = node.prev
		action := s.finalizers[node.action]
		s.finalizers[node.action] = nil
		action(unsafe.Add(unsafe.Pointer(node), header))
	}
}

// Alignment returns the allocation granularity of the underlying allocator.
func (s *ScopeStack) Alignment() uintptr {
	return s.allocator.alignment
}

// Allocator returns the borrowed allocator.
func (s *ScopeStack) Allocator() *LinearAllocator {
	return s.allocator
}

// Base returns the allocator marker captured when the scope was opened.
func (s *ScopeStack) Base() Marker {
	return s.base
}

// Finalizers returns the number of objects awaiting finalization.
func (s *ScopeStack) Finalizers() int {
	return len(s.finalizers)
}

func (s *ScopeStack) finalizerSize() uintptr {
	return AlignSize(unsafe.Sizeof(finalizerNode{}), s.allocator.alignment)
}

func (s *ScopeStack) checkUsable() {
	if s.closed {
		fatalf(ErrScopeClosed, "allocation on closed scope %p", s)
	}
	if s.allocator.innermost() != s {
		fatalf(ErrScopeOrder, "allocation on scope %p while a nested scope is open", s)
	}
}

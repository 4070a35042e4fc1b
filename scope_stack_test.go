// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// finalizeLog collects the ids of finalized objects. Arena objects cannot hold
// Go pointers, so they report through this package-level log.
var finalizeLog []int32

func resetFinalizeLog(t *testing.T) {
	t.Helper()
	finalizeLog = nil
	t.Cleanup(func() { finalizeLog = nil })
}

type tracked struct {
	id int32
}

func (o *tracked) Finalize() {
	finalizeLog = append(finalizeLog, o.id)
}

type defaulted struct {
	value int32
	ready bool
}

func (d *defaulted) Init() {
	d.value = 42
	d.ready = true
}

type finalizedDefault struct {
	value int32
}

func (f *finalizedDefault) Init() {
	f.value = 42
}

func (f *finalizedDefault) Finalize() {
	finalizeLog = append(finalizeLog, f.value)
}

type brokenInit struct {
	n int32
}

func (b *brokenInit) Init() {
	panic("construction failed")
}

func (b *brokenInit) Finalize() {
	finalizeLog = append(finalizeLog, -1)
}

func TestScopeStackCapturesMarker(t *testing.T) {
	alloc := newTestAllocator(t, 1024)
	alloc.Allocate(32)

	scope := NewScopeStack(alloc)
	require.Equal(t, alloc.Marker(), scope.Base())
	require.Same(t, alloc, scope.Allocator())
	require.Equal(t, alloc.Alignment(), scope.Alignment())
	scope.Close()
	require.Equal(t, 32, alloc.Len())
}

func TestScopeStackFinalizerOrder(t *testing.T) {
	resetFinalizeLog(t)
	alloc := newTestAllocator(t, 4096)

	scope := NewScopeStack(alloc)
	for i := int32(0); i < 100; i++ {
		obj := AllocateWithFinalizer[tracked](scope)
		obj.id = i
	}
	require.Equal(t, 100, scope.Finalizers())
	require.Empty(t, finalizeLog)

	scope.Close()

	require.Len(t, finalizeLog, 100)
	for i, id := range finalizeLog {
		require.Equal(t, int32(99-i), id)
	}
	require.Equal(t, alloc.Base(), alloc.Marker())
}

func TestScopeStackRewindsUntrackedAllocations(t *testing.T) {
	resetFinalizeLog(t)
	alloc := newTestAllocator(t, 4096)
	base := alloc.Marker()

	WithScope(alloc, func(s *ScopeStack) {
		s.AllocateRaw(100)
		AllocateObject[defaulted](s)
		AllocateWithFinalizer[tracked](s).id = 7
		s.AllocateRaw(5)
		require.Greater(t, alloc.Len(), 0)
	})

	require.Equal(t, base, alloc.Marker())
	require.Equal(t, []int32{7}, finalizeLog)
}

func TestScopeStackAllocateObjectInitializes(t *testing.T) {
	alloc := newTestAllocator(t, 1024)
	scope := NewScopeStack(alloc)
	defer scope.Close()

	// Dirty the memory so the zeroing is observable
	raw := unsafe.Slice((*byte)(scope.AllocateRaw(64)), 64)
	for i := range raw {
		raw[i] = 0xff
	}
	alloc.Rewind(scope.Base())

	obj := AllocateObject[defaulted](scope)
	require.Equal(t, int32(42), obj.value)
	require.True(t, obj.ready)

	plain := AllocateObject[tracked](scope)
	require.Equal(t, int32(0), plain.id)
	require.Zero(t, uintptr(unsafe.Pointer(plain))%scope.Alignment())
}

func TestScopeStackFinalizerLayout(t *testing.T) {
	resetFinalizeLog(t)
	alloc := newTestAllocator(t, 1024)
	scope := NewScopeStack(alloc)

	before := alloc.Marker()
	obj := AllocateWithFinalizer[finalizedDefault](scope)
	header := AlignSize(unsafe.Sizeof(finalizerNode{}), scope.Alignment())

	// The object follows its finalizer node
	require.Equal(t, uintptr(before)+header, uintptr(unsafe.Pointer(obj)))
	require.Equal(t, uintptr(before)+header+AlignSize(unsafe.Sizeof(*obj), scope.Alignment()), uintptr(alloc.Marker()))
	require.Equal(t, int32(42), obj.value)

	obj.value = 13
	scope.Close()
	require.Equal(t, []int32{13}, finalizeLog)
}

func TestScopeStackFinalizerFunc(t *testing.T) {
	alloc := newTestAllocator(t, 1024)
	var seen []uint64

	WithScope(alloc, func(s *ScopeStack) {
		for i := uint64(1); i <= 3; i++ {
			v := AllocateWithFinalizerFunc(s, func(p *uint64) {
				seen = append(seen, *p)
			})
			*v = i * 10
		}
	})

	require.Equal(t, []uint64{30, 20, 10}, seen)
}

func TestScopeStackNested(t *testing.T) {
	resetFinalizeLog(t)
	alloc := newTestAllocator(t, 4096)

	outer := NewScopeStack(alloc)
	for i := int32(0); i < 10; i++ {
		AllocateWithFinalizer[tracked](outer).id = i
	}
	outerMarker := alloc.Marker()

	inner := NewScopeStack(alloc)
	for i := 0; i < 10; i++ {
		AllocateObject[defaulted](inner)
	}
	AllocateWithFinalizer[tracked](inner).id = 100
	require.Greater(t, alloc.Marker(), outerMarker)

	inner.Close()
	require.Equal(t, outerMarker, alloc.Marker())
	require.Equal(t, []int32{100}, finalizeLog)

	// The outer scope may allocate again once the inner one is gone
	AllocateWithFinalizer[tracked](outer).id = 10

	outer.Close()
	require.Equal(t, alloc.Base(), alloc.Marker())
	require.Equal(t, []int32{100, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0}, finalizeLog)
}

func TestScopeStackOutOfOrderClose(t *testing.T) {
	alloc := newTestAllocator(t, 1024)
	outer := NewScopeStack(alloc)
	inner := NewScopeStack(alloc)

	requirePanicsWith(t, ErrScopeOrder, outer.Close)

	// Nothing changed, the scopes can still be closed properly
	inner.Close()
	outer.Close()
	require.Equal(t, 0, alloc.Len())
}

func TestScopeStackOuterAllocationWhileNested(t *testing.T) {
	alloc := newTestAllocator(t, 1024)
	outer := NewScopeStack(alloc)
	inner := NewScopeStack(alloc)

	requirePanicsWith(t, ErrScopeOrder, func() { outer.AllocateRaw(8) })
	requirePanicsWith(t, ErrScopeOrder, func() { AllocateObject[tracked](outer) })

	inner.Close()
	outer.AllocateRaw(8)
	outer.Close()
}

func TestScopeStackClosed(t *testing.T) {
	alloc := newTestAllocator(t, 1024)
	scope := NewScopeStack(alloc)
	scope.Close()

	// Close is idempotent
	scope.Close()

	requirePanicsWith(t, ErrScopeClosed, func() { scope.AllocateRaw(8) })
	requirePanicsWith(t, ErrScopeClosed, func() { AllocateWithFinalizer[tracked](scope) })
}

func TestScopeStackFailedConstructionIsNotFinalized(t *testing.T) {
	resetFinalizeLog(t)
	alloc := newTestAllocator(t, 1024)
	scope := NewScopeStack(alloc)

	AllocateWithFinalizer[tracked](scope).id = 1
	require.Panics(t, func() { AllocateWithFinalizer[brokenInit](scope) })
	AllocateWithFinalizer[tracked](scope).id = 2

	scope.Close()
	require.Equal(t, []int32{2, 1}, finalizeLog)
	require.Equal(t, 0, alloc.Len())
}

func TestScopeStackExhaustion(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	scope := NewScopeStack(alloc)
	defer scope.Close()

	requirePanicsWith(t, ErrArenaExhausted, func() { scope.AllocateRaw(65) })
}

func TestScopeStackPanickingFinalizer(t *testing.T) {
	resetFinalizeLog(t)
	alloc := newTestAllocator(t, 1024)
	base := alloc.Marker()
	scope := NewScopeStack(alloc)

	for id := int32(0); id < 4; id++ {
		obj := AllocateWithFinalizerFunc(scope, func(o *tracked) {
			finalizeLog = append(finalizeLog, o.id)
			if o.id == 2 {
				panic("finalize failed")
			}
		})
		obj.id = id
	}

	require.PanicsWithValue(t, "finalize failed", scope.Close)
	require.Equal(t, []int32{3, 2, 1, 0}, finalizeLog)
	require.Equal(t, base, alloc.Marker())
	require.Equal(t, 0, scope.Finalizers())

	// The allocator is usable again
	WithScope(alloc, func(s *ScopeStack) {
		s.AllocateRaw(16)
	})
	require.Equal(t, base, alloc.Marker())
}

type wide struct {
	v int64
}

func (w *wide) Finalize() {
	finalizeLog = append(finalizeLog, int32(w.v))
}

func TestScopeStackAlignsObjectsInLooseBlocks(t *testing.T) {
	resetFinalizeLog(t)
	block := NewAlignedBlock(4096, 1)
	defer block.Release()
	alloc := NewLinearAllocatorFromBlock(block)

	WithScope(alloc, func(s *ScopeStack) {
		s.AllocateRaw(3)
		obj := AllocateObject[wide](s)
		require.Zero(t, uintptr(unsafe.Pointer(obj))%unsafe.Alignof(obj.v))

		s.AllocateRaw(5)
		fin := AllocateWithFinalizer[wide](s)
		fin.v = 7
		require.Zero(t, uintptr(unsafe.Pointer(fin))%unsafe.Alignof(fin.v))

		node := unsafe.Add(unsafe.Pointer(fin), -int(s.finalizerSize()))
		require.Zero(t, uintptr(node)%unsafe.Alignof(finalizerNode{}))
	})
	require.Equal(t, []int32{7}, finalizeLog)
}

func TestWithScopeClosesOnPanic(t *testing.T) {
	resetFinalizeLog(t)
	alloc := newTestAllocator(t, 1024)

	require.Panics(t, func() {
		WithScope(alloc, func(s *ScopeStack) {
			AllocateWithFinalizer[tracked](s).id = 5
			panic("boom")
		})
	})

	require.Equal(t, []int32{5}, finalizeLog)
	require.Equal(t, 0, alloc.Len())
}

type withPointer struct {
	next *withPointer
}

func TestScopeStackRejectsPointerTypesInDebug(t *testing.T) {
	if !debugEnabled {
		t.Skip("pointer-free checks are only active with -tags debug")
	}
	alloc := newTestAllocator(t, 1024)
	scope := NewScopeStack(alloc)
	defer scope.Close()

	requirePanicsWith(t, ErrPointerFields, func() { AllocateObject[withPointer](scope) })
	requirePanicsWith(t, ErrPointerFields, func() { AllocateObject[string](scope) })
	require.NotNil(t, AllocateObject[[4]int64](scope))
}

func TestHasPointerKinds(t *testing.T) {
	require.False(t, hasPointerKinds(reflect.TypeFor[int64]()))
	require.False(t, hasPointerKinds(reflect.TypeFor[tracked]()))
	require.False(t, hasPointerKinds(reflect.TypeFor[[0]*int]()))
	require.True(t, hasPointerKinds(reflect.TypeFor[withPointer]()))
	require.True(t, hasPointerKinds(reflect.TypeFor[[]byte]()))
	require.True(t, hasPointerKinds(reflect.TypeFor[struct{ f func() }]()))
	require.True(t, hasPointerKinds(reflect.TypeFor[[2]map[int]int]()))
}

func BenchmarkScopeStackAllocateWithFinalizer(b *testing.B) {
	alloc := newTestAllocator(b, 1024*1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scope := NewScopeStack(alloc)
		for j := 0; j < 64; j++ {
			AllocateWithFinalizerFunc(scope, func(*int64) {})
		}
		scope.Close()
	}
}

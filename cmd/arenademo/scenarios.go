// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"

	arena "github.com/wundergraph/go-scopearena"
)

type scenario struct {
	name string
	run  func(a *arena.LinearAllocator, n int) error
}

var scenarios = []scenario{
	{name: "finalizers run in reverse order", run: finalizerOrder},
	{name: "nested scopes rewind independently", run: nestedScopes},
	{name: "arrays of every trait", run: arrays},
	{name: "shared pointer finalizes once", run: sharedPointer},
	{name: "scope-backed buffer", run: scopedBuffer},
}

// finalized collects object ids in finalization order.
var finalized []int32

type object struct {
	id    int32
	value int32
}

func (o *object) Init() {
	o.value = 42
}

func (o *object) Finalize() {
	finalized = append(finalized, o.id)
}

func expectReverse(n int) []int32 {
	want := make([]int32, n)
	for i := range want {
		want[i] = int32(n - 1 - i)
	}
	return want
}

func finalizerOrder(a *arena.LinearAllocator, n int) error {
	finalized = finalized[:0]
	start := a.Marker()
	uninitialized := 0

	arena.WithScope(a, func(s *arena.ScopeStack) {
		for i := 0; i < n; i++ {
			o := arena.AllocateWithFinalizer[object](s)
			if o.value != 42 {
				uninitialized++
			}
			o.id = int32(i)
		}
	})

	if uninitialized > 0 {
		return errors.Newf("%d objects skipped Init", uninitialized)
	}
	if a.Marker() != start {
		return errors.Newf("marker %#x not rewound to %#x", uintptr(a.Marker()), uintptr(start))
	}
	if !slices.Equal(finalized, expectReverse(n)) {
		return errors.Newf("finalized %d objects out of order", len(finalized))
	}
	return nil
}

func nestedScopes(a *arena.LinearAllocator, n int) error {
	outer := arena.NewScopeStack(a)
	defer outer.Close()

	arena.AllocateObject[object](outer)
	afterOuter := a.Marker()

	arena.WithScope(a, func(inner *arena.ScopeStack) {
		for i := 0; i < n; i++ {
			inner.AllocateRaw(24)
		}
	})
	if a.Marker() != afterOuter {
		return errors.New("inner scope did not rewind to the outer allocation")
	}
	return nil
}

func arrays(a *arena.LinearAllocator, n int) error {
	finalized = finalized[:0]
	var sum int32

	arena.WithScope(a, func(s *arena.ScopeStack) {
		raw := arena.NewRawArray[int16](s, n)
		objects := arena.NewObjectArray[object](s, n)
		tracked := arena.NewFinalizerArray[object](s, n)

		for i, o := range tracked.All() {
			o.id = int32(i)
		}
		for i, v := range raw.All() {
			*v = int16(i)
		}
		for _, o := range objects.All() {
			sum += o.value
		}
	})

	if sum != int32(42*n) {
		return errors.Newf("object array initialized to %d, want %d", sum, 42*n)
	}
	if !slices.Equal(finalized, expectReverse(n)) {
		return errors.Newf("array elements finalized out of order (%d)", len(finalized))
	}
	return nil
}

func sharedPointer(_ *arena.LinearAllocator, _ int) error {
	var count int
	v := object{id: 1}
	a := arena.NewSmartPointerFunc(&v, func(*object) { count++ })
	b := a.Clone()

	a.Release()
	if count != 0 || b.Get().id != 1 {
		return errors.New("pointee finalized while still shared")
	}
	b.Release()
	if count != 1 {
		return errors.Newf("finalized %d times", count)
	}
	return nil
}

func scopedBuffer(a *arena.LinearAllocator, n int) error {
	var out string
	arena.WithScope(a, func(s *arena.ScopeStack) {
		buf := arena.NewBuffer(s)
		for i := 0; i < n; i++ {
			_ = buf.WriteByte(byte('a' + i%26))
		}
		out = buf.String()
	})
	if len(out) != n {
		return errors.Newf("buffer holds %d bytes, want %d", len(out), n)
	}
	return nil
}

// trackerScenario mirrors a typical leak: one of three tracked allocations is
// released and the report lists the remaining two.
func trackerScenario(p *printer) {
	raw := arena.TrackedAlloc(4096)
	one := arena.TrackedNew[int32]()
	many := arena.TrackedAlloc(42 * 4)
	arena.TrackedDelete(one)

	p.field("tracked", fmt.Sprintf("%d bytes in %d allocations", arena.DefaultTracker.BytesAllocated(), arena.DefaultTracker.Len()))
	arena.DefaultTracker.Report()

	arena.TrackedFree(raw)
	arena.TrackedFree(many)
}

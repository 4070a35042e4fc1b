// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolAcquireRelease(t *testing.T) {
	p := NewPool()

	item := p.Acquire(1)
	require.NotNil(t, item.Allocator)
	require.Equal(t, uint64(1), item.Key)
	require.Equal(t, uintptr(defaultPoolArenaSize), item.Block.Size())
	require.Equal(t, defaultPoolArenaSize, item.Allocator.Cap())

	WithScope(item.Allocator, func(s *ScopeStack) {
		s.AllocateRaw(100)
	})
	p.Release(item)
	require.Equal(t, 0, item.Allocator.Len())
	require.Equal(t, uint64(0), item.Key)

	// The item is still strongly referenced here, so it must come back
	again := p.Acquire(2)
	require.Same(t, item, again)
	require.Equal(t, uint64(2), again.Key)
}

func TestPoolSizesFromPeak(t *testing.T) {
	p := NewPool()

	first := p.Acquire(7)
	scope := NewScopeStack(first.Allocator)
	scope.AllocateRaw(1000)
	scope.Close()
	p.Release(first)

	reused := p.Acquire(7)
	require.Same(t, first, reused)

	// The pool is empty now, so this one is sized from the recorded peak
	fresh := p.Acquire(7)
	require.NotSame(t, first, fresh)
	require.Equal(t, uintptr(1008), fresh.Block.Size())

	// Unknown keys still get the default size
	other := p.Acquire(8)
	require.Equal(t, uintptr(defaultPoolArenaSize), other.Block.Size())

	p.ReleaseMany([]*PoolItem{reused, fresh, other})
}

func TestPoolSizesFromLargestPeak(t *testing.T) {
	p := NewPool()
	a := p.Acquire(3)
	b := p.Acquire(3)

	a.Allocator.Allocate(256)
	b.Allocator.Allocate(768)
	p.ReleaseMany([]*PoolItem{a, b})
	require.Equal(t, 768, p.arenaSize(3))
}

func TestPoolAlternatingPeaks(t *testing.T) {
	p := NewPool()

	// Small, large, small loans for one key
	for _, n := range []uintptr{100, 1000, 100} {
		item := p.Acquire(1)
		WithScope(item.Allocator, func(s *ScopeStack) {
			s.AllocateRaw(n)
		})
		p.Release(item)
	}
	require.Equal(t, 1008, p.arenaSize(1))

	idle := p.Acquire(1)
	fresh := p.Acquire(1)
	require.NotSame(t, idle, fresh)
	require.Equal(t, 1008, fresh.Allocator.Cap())

	// A fresh arena holds the largest recorded workload
	require.NotPanics(t, func() {
		WithScope(fresh.Allocator, func(s *ScopeStack) {
			s.AllocateRaw(1000)
		})
	})
	p.ReleaseMany([]*PoolItem{idle, fresh})
}

func TestPoolPeakIsPerLoan(t *testing.T) {
	p := NewPool()
	item := p.Acquire(1)
	item.Allocator.Allocate(4096)
	p.Release(item)
	require.Equal(t, 0, item.Allocator.Peak())

	again := p.Acquire(2)
	require.Same(t, item, again)
	again.Allocator.Allocate(64)
	p.Release(again)
	require.Equal(t, 64, p.arenaSize(2))
}

func TestPoolSkipsSmallIdleArenas(t *testing.T) {
	p := NewPool()

	// Record a small peak for key 1 and get an arena sized for it
	first := p.Acquire(1)
	first.Allocator.Allocate(100)
	p.Release(first)
	first = p.Acquire(1)
	small := p.Acquire(1)
	require.Equal(t, 112, small.Allocator.Cap())
	p.Release(small)

	// Unknown keys need the default size, so the small arena is passed over
	other := p.Acquire(2)
	require.NotSame(t, small, other)
	require.Equal(t, defaultPoolArenaSize, other.Allocator.Cap())

	// but it still serves the key it was sized for
	require.Same(t, small, p.Acquire(1))
	p.ReleaseMany([]*PoolItem{first, other})
}

func TestPoolWithOptions(t *testing.T) {
	heap := newRecordingHeap()
	p := NewPool(WithPoolHeap(heap), WithPoolAlignment(4096))

	item := p.Acquire(1)
	require.Len(t, heap.allocs, 1)
	require.Zero(t, uintptr(item.Block.Pointer())%4096)
	require.Equal(t, uintptr(DefaultAlignment), item.Allocator.Alignment())
}

func TestPoolByteAlignedBlocksHoldTheirSize(t *testing.T) {
	p := NewPool(WithPoolAlignment(1))
	item := p.Acquire(1)
	item.Allocator.Allocate(100)
	p.Release(item)

	_ = p.Acquire(1)
	fresh := p.Acquire(1)
	require.GreaterOrEqual(t, fresh.Allocator.Cap(), 112)
}

func TestPoolReleaseWithOpenScope(t *testing.T) {
	p := NewPool()
	item := p.Acquire(1)
	scope := NewScopeStack(item.Allocator)

	requirePanicsWith(t, ErrScopeOrder, func() { p.Release(item) })
	scope.Close()
	p.Release(item)
}

// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"runtime"
	"slices"
	"sync"
	"weak"

	"go.uber.org/zap"
)

const (
	defaultPoolArenaSize = 1024 * 1024 // 1MB
	poolSizeWindow       = 50
)

// Pool recycles arenas between callers. Allocators never grow, so the pool
// is where an arena gets sized: new arenas for a key are as large as the
// largest peak recorded for that key, and idle arenas smaller than that are
// not handed out for it.
//
// Idle arenas are held through weak pointers, so the GC can reclaim them under
// memory pressure; their blocks are released by a runtime cleanup.
// Pool is safe for concurrent use; the arenas it hands out are not.
type Pool struct {
	// pool is a slice of weak pointers to idle items
	pool      []weak.Pointer[PoolItem]
	sizes     map[uint64]*poolItemSize
	heap      Heap
	alignment uintptr
	mu        sync.Mutex
}

// poolItemSize tracks the peak usage of a key. After poolSizeWindow releases
// the largest peak decays to the window's average, so one outlier does not
// inflate the key forever.
type poolItemSize struct {
	count      int
	totalBytes int
	maxBytes   int
}

// PoolItem is an arena on loan from a Pool.
type PoolItem struct {
	Allocator *LinearAllocator
	Block     *AlignedBlock
	Key       uint64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolHeap sets the heap new blocks are acquired from.
func WithPoolHeap(h Heap) PoolOption {
	return func(p *Pool) {
		p.heap = h
	}
}

// WithPoolAlignment sets the alignment of new blocks and their allocators.
func WithPoolAlignment(alignment uintptr) PoolOption {
	return func(p *Pool) {
		p.alignment = alignment
	}
}

// NewPool creates an empty Pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		sizes:     make(map[uint64]*poolItemSize),
		heap:      DefaultHeap,
		alignment: DefaultAlignment,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns an idle arena or creates one sized for key.
func (p *Pool) Acquire(key uint64) *PoolItem {
	p.mu.Lock()
	defer p.mu.Unlock()

	size := p.arenaSize(key)
	for i := len(p.pool) - 1; i >= 0; i-- {
		v := p.pool[i].Value()
		if v != nil && v.Allocator.Cap() < size {
			// too small for this key, leave it for another
			continue
		}
		p.pool = slices.Delete(p.pool, i, i+1)
		if v != nil {
			v.Key = key
			return v
		}
		// collected, try the next one
	}

	Logger().Debug("pool creating arena", zap.Uint64("key", key), zap.Int("size", size))

	blockSize := uintptr(size)
	if p.alignment < minAlignment {
		// room for the allocator to skip to its first aligned byte
		blockSize += minAlignment - 1
	}
	block := NewAlignedBlock(blockSize, p.alignment, WithHeap(p.heap))
	item := &PoolItem{
		Allocator: NewLinearAllocatorFromBlock(block),
		Block:     block,
		Key:       key,
	}
	runtime.AddCleanup(item, func(b *AlignedBlock) { b.Release() }, block)
	return item
}

// Release resets the item's allocator and returns it to the pool, recording
// its peak usage for future sizing. The allocator must have no open scopes.
func (p *Pool) Release(item *PoolItem) {
	p.ReleaseMany([]*PoolItem{item})
}

// ReleaseMany releases several items under a single lock.
func (p *Pool) ReleaseMany(items []*PoolItem) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, item := range items {
		peak := item.Allocator.Peak()
		item.Allocator.Reset()
		// the next loan reports its own peak
		item.Allocator.peak = 0

		if size, ok := p.sizes[item.Key]; ok {
			if size.count == poolSizeWindow {
				size.maxBytes = size.totalBytes / poolSizeWindow
				size.count = 0
				size.totalBytes = 0
			}
			size.count++
			size.totalBytes += peak
			size.maxBytes = max(size.maxBytes, peak)
		} else {
			p.sizes[item.Key] = &poolItemSize{
				count:      1,
				totalBytes: peak,
				maxBytes:   peak,
			}
		}

		item.Key = 0
		p.pool = append(p.pool, weak.Make(item))
	}
}

// arenaSize returns the largest recorded peak for key, or 1MB.
func (p *Pool) arenaSize(key uint64) int {
	if size, ok := p.sizes[key]; ok && size.maxBytes > 0 {
		return size.maxBytes
	}
	return defaultPoolArenaSize
}

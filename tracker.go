// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"unsafe"

	"go.uber.org/zap"
)

// Allocation describes one tracked allocation.
type Allocation struct {
	Pointer uintptr
	File    string
	Line    int
	Size    uintptr
}

// AllocationTracker is a diagnostic ledger of live allocations keyed by
// address. It is not safe for concurrent use.
type AllocationTracker struct {
	allocations    map[uintptr]Allocation
	bytesAllocated uintptr
	sink           io.Writer
	logger         *zap.Logger
}

// TrackerOption configures an AllocationTracker.
type TrackerOption func(*AllocationTracker)

// WithSink sets where Remove failures and reports are written.
// The default is os.Stdout.
func WithSink(w io.Writer) TrackerOption {
	return func(t *AllocationTracker) {
		t.sink = w
	}
}

// WithTrackerLogger sets the logger used for unknown releases.
// The default is the package logger.
func WithTrackerLogger(l *zap.Logger) TrackerOption {
	return func(t *AllocationTracker) {
		t.logger = l
	}
}

// NewAllocationTracker creates an empty tracker.
func NewAllocationTracker(opts ...TrackerOption) *AllocationTracker {
	t := &AllocationTracker{
		allocations: make(map[uintptr]Allocation),
		sink:        os.Stdout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add records an allocation and returns ptr unchanged, so it can wrap an
// allocation expression.
func (t *AllocationTracker) Add(ptr unsafe.Pointer, file string, line int, size uintptr) unsafe.Pointer {
	t.allocations[uintptr(ptr)] = Allocation{
		Pointer: uintptr(ptr),
		File:    file,
		Line:    line,
		Size:    size,
	}
	t.bytesAllocated += size
	return ptr
}

// Remove forgets the allocation at ptr. An unknown address is reported to the
// sink and false is returned; execution continues.
func (t *AllocationTracker) Remove(ptr unsafe.Pointer) bool {
	a, ok := t.allocations[uintptr(ptr)]
	if !ok {
		fmt.Fprintf(t.sink, "Tried to delete illegal pointer @ %#x\n", uintptr(ptr))
		t.log().Warn("release of untracked allocation",
			zap.Uintptr("pointer", uintptr(ptr)),
			zap.Error(ErrUnknownPointerRelease))
		return false
	}
	t.bytesAllocated -= a.Size
	delete(t.allocations, uintptr(ptr))
	return true
}

// Report writes one line per live allocation to the sink, ordered by address.
func (t *AllocationTracker) Report() {
	fmt.Fprintln(t.sink, "*** MEMORY REPORT ***")
	for _, a := range t.Allocations() {
		fmt.Fprintf(t.sink, "%s at line %d @ %#x (%d bytes)\n", a.File, a.Line, a.Pointer, a.Size)
	}
	fmt.Fprintln(t.sink, "*** MEMORY REPORT ***")
}

// Allocations returns the live allocations ordered by address.
func (t *AllocationTracker) Allocations() []Allocation {
	keys := slices.Sorted(maps.Keys(t.allocations))
	out := make([]Allocation, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.allocations[k])
	}
	return out
}

// BytesAllocated returns the total size of all live allocations.
func (t *AllocationTracker) BytesAllocated() uintptr {
	return t.bytesAllocated
}

func (t *AllocationTracker) log() *zap.Logger {
	if t.logger != nil {
		return t.logger
	}
	return Logger()
}

// Len returns the number of live allocations.
func (t *AllocationTracker) Len() int {
	return len(t.allocations)
}

// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package arena

// NewMmapHeap falls back to the Go heap where mmap is unavailable.
func NewMmapHeap() Heap {
	return GoHeap{}
}

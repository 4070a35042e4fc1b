// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"unsafe"
)

const growThreshold = 256

// MakeSlice creates a slice of type T with a given length and capacity whose
// backing array is raw memory from the scope. It stays valid until the scope
// closes. If the scope is nil, it falls back to Go's built-in make.
//
// Elements are zeroed but never finalized, so T must be pointer-free.
func MakeSlice[T any](s *ScopeStack, len, cap int) []T {
	if s == nil {
		return make([]T, len, cap)
	}
	assertPointerFree[T]()
	if cap == 0 {
		return []T{}[:len:cap]
	}
	ptr := (*T)(s.AllocateRaw(sizeOf[T]() * uintptr(cap)))
	buf := unsafe.Slice(ptr, cap)
	clear(buf)
	return buf[:len]
}

// SliceAppend appends elements to a slice of type T, taking new backing
// memory from the scope when the slice has to grow. The old backing array is
// not reclaimed before the scope closes.
func SliceAppend[T any](s *ScopeStack, dst []T, data ...T) []T {
	if s == nil {
		return append(dst, data...)
	}
	dst = growSlice(s, dst, len(data))
	dst = append(dst, data...)
	return dst
}

func growSlice[T any](s *ScopeStack, dst []T, dataLen int) []T {
	newLen := len(dst) + dataLen
	newCap := cap(dst)

	if newCap > 0 {
		for newLen > newCap {
			if newCap < growThreshold {
				newCap *= 2
			} else {
				newCap += newCap / 4
			}
		}
	} else {
		newCap = dataLen
	}
	if newCap == cap(dst) {
		return dst
	}
	grown := MakeSlice[T](s, len(dst), newCap)
	copy(grown, dst)
	return grown
}

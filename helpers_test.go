// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// newTestAllocator returns an allocator over a fresh aligned block that is
// released when the test ends.
func newTestAllocator(t testing.TB, size uintptr, opts ...LinearAllocatorOption) *LinearAllocator {
	t.Helper()
	block := NewAlignedBlock(size, DefaultAlignment)
	t.Cleanup(block.Release)
	return NewLinearAllocatorFromBlock(block, opts...)
}

// requirePanicsWith asserts that fn panics with an error matching sentinel.
func requirePanicsWith(t *testing.T, sentinel error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.True(t, errors.Is(err, sentinel), "panic %v does not match %v", err, sentinel)
	}()
	fn()
}

// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"github.com/cockroachdb/errors"
)

// Fatal conditions are raised with panic. The panic value always wraps one of
// the sentinels below so that a recovering caller can match it with errors.Is.
var (
	// ErrArenaExhausted is raised when an allocation would move the marker past the end of the span.
	ErrArenaExhausted = errors.New("arena: exhausted")

	// ErrInvalidRewindTarget is raised when a marker outside [base, end] is passed to Rewind.
	ErrInvalidRewindTarget = errors.New("arena: invalid rewind target")

	// ErrUnknownPointerRelease is reported by the tracker for an address it never recorded.
	// It is the only non-fatal condition.
	ErrUnknownPointerRelease = errors.New("arena: release of unknown pointer")

	// ErrNullDereference is raised when an empty SmartPointer is dereferenced.
	ErrNullDereference = errors.New("arena: nil smart pointer dereference")

	ErrInvalidAlignment = errors.New("arena: invalid alignment")
	ErrScopeOrder       = errors.New("arena: scope used out of order")
	ErrScopeClosed      = errors.New("arena: scope already closed")
	ErrIndexOutOfRange  = errors.New("arena: index out of range")
	ErrUnknownBlock     = errors.New("arena: release of block not produced by AcquireAligned")
	ErrPointerFields    = errors.New("arena: type contains Go pointers")
)

func fatalf(sentinel error, format string, args ...any) {
	panic(errors.Wrapf(sentinel, format, args...))
}

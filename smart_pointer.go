// SPDX-License-Identifier: Apache-2.0

package arena

// SmartPointer shares ownership of a pointee among all its aliases. The
// aliases form a circular doubly linked ring instead of sharing a counter:
// the member that unlinks while it is alone in the ring finalizes the
// pointee.
//
// The zero value is an empty pointer. A SmartPointer must not be copied by
// value; use Clone. go vet reports copies.
type SmartPointer[T any] struct {
	_        noCopy
	pointee  *T
	finalize func(*T)
	next     *SmartPointer[T]
	prev     *SmartPointer[T]
}

// NewEmptySmartPointer returns a pointer that owns nothing.
func NewEmptySmartPointer[T any]() *SmartPointer[T] {
	p := &SmartPointer[T]{}
	p.selfLink()
	return p
}

// NewSmartPointer takes ownership of pointee. When the last alias is released
// the pointee's Finalize method is called, if it has one.
func NewSmartPointer[T any](pointee *T) *SmartPointer[T] {
	return NewSmartPointerFunc(pointee, finalizeMethod[T])
}

// NewSmartPointerFunc takes ownership of pointee and calls finalize on it when
// the last alias is released.
func NewSmartPointerFunc[T any](pointee *T, finalize func(*T)) *SmartPointer[T] {
	p := &SmartPointer[T]{pointee: pointee, finalize: finalize}
	p.selfLink()
	return p
}

func finalizeMethod[T any](v *T) {
	if f, ok := any(v).(interface{ Finalize() }); ok {
		f.Finalize()
	}
}

// Clone returns a new alias sharing the receiver's pointee. Cloning an empty
// pointer yields an independent empty pointer.
func (p *SmartPointer[T]) Clone() *SmartPointer[T] {
	c := NewEmptySmartPointer[T]()
	c.join(p)
	return c
}

// Assign drops the receiver's current pointee and makes it an alias of other.
func (p *SmartPointer[T]) Assign(other *SmartPointer[T]) {
	if p == other {
		return
	}
	p.Release()
	p.join(other)
}

// Release unlinks the receiver from its ring. If it was the only member the
// pointee is finalized. The receiver is empty afterwards.
func (p *SmartPointer[T]) Release() {
	p.selfLink()
	if p.next != p {
		p.prev.next = p.next
		p.next.prev = p.prev
		p.next = p
		p.prev = p
	} else if p.pointee != nil && p.finalize != nil {
		p.finalize(p.pointee)
	}
	p.pointee = nil
	p.finalize = nil
}

// Get dereferences the pointer. Dereferencing an empty pointer is fatal.
func (p *SmartPointer[T]) Get() *T {
	if p.pointee == nil {
		fatalf(ErrNullDereference, "SmartPointer[%T]", p.pointee)
	}
	return p.pointee
}

// IsNil reports whether the pointer is empty.
func (p *SmartPointer[T]) IsNil() bool {
	return p.pointee == nil
}

// Equal reports whether both pointers refer to the same pointee.
func (p *SmartPointer[T]) Equal(other *SmartPointer[T]) bool {
	return p.pointee == other.pointee
}

// Unique reports whether the receiver is the only alias of its pointee.
func (p *SmartPointer[T]) Unique() bool {
	return p.next == nil || p.next == p
}

// join links p next to other. p must be alone in its ring.
func (p *SmartPointer[T]) join(other *SmartPointer[T]) {
	if other.pointee == nil {
		return
	}
	other.selfLink()
	p.pointee = other.pointee
	p.finalize = other.finalize
	p.prev = other
	p.next = other.next
	other.next.prev = p
	other.next = p
}

// selfLink turns a zero value into a ring of one.
func (p *SmartPointer[T]) selfLink() {
	if p.next == nil {
		p.next = p
		p.prev = p
	}
}

// noCopy makes go vet's copylocks check flag by-value copies of the
// containing struct.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

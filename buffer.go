// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"io"
)

const readChunkSize = 4 * 1024

// Buffer is a bytes.Buffer-like FIFO whose storage is taken from a
// ScopeStack. It implements io.Writer, io.Reader, io.WriterTo and
// io.ReaderFrom, which makes it usable as a report sink that lives and dies
// with a scope. Growing leaves the previous storage behind in the scope.
type Buffer struct {
	scope *ScopeStack
	buf   []byte // unread bytes
	chunk []byte // scratch space for ReadFrom
}

// NewBuffer creates a Buffer backed by the given scope.
// If scope is nil, it falls back to Go heap allocation.
func NewBuffer(scope *ScopeStack) *Buffer {
	return &Buffer{scope: scope}
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.buf = SliceAppend(b.scope, b.buf, p...)
	return len(p), nil
}

// WriteByte appends c to the buffer.
func (b *Buffer) WriteByte(c byte) error {
	b.buf = SliceAppend(b.scope, b.buf, c)
	return nil
}

// WriteString appends s to the buffer.
func (b *Buffer) WriteString(s string) (n int, err error) {
	if len(s) == 0 {
		return 0, nil
	}
	b.buf = SliceAppend(b.scope, b.buf, []byte(s)...)
	return len(s), nil
}

// WriteTo implements io.WriterTo. Bytes accepted by w are consumed.
func (b *Buffer) WriteTo(w io.Writer) (n int64, err error) {
	if len(b.buf) == 0 {
		return 0, nil
	}
	m, err := w.Write(b.buf)
	b.consume(m)
	return int64(m), err
}

// Read implements io.Reader.
func (b *Buffer) Read(p []byte) (n int, err error) {
	if len(b.buf) == 0 {
		return 0, io.EOF
	}
	n = copy(p, b.buf)
	b.consume(n)
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}

// ReadByte returns the next unread byte.
func (b *Buffer) ReadByte() (byte, error) {
	if len(b.buf) == 0 {
		return 0, io.EOF
	}
	c := b.buf[0]
	b.consume(1)
	return c, nil
}

// Next returns a copy of the next n unread bytes and consumes them.
func (b *Buffer) Next(n int) []byte {
	if n <= 0 || len(b.buf) == 0 {
		return []byte{}
	}
	n = min(n, len(b.buf))
	out := make([]byte, n)
	copy(out, b.buf)
	b.consume(n)
	return out
}

// ReadFrom implements io.ReaderFrom. The scratch chunk comes from the scope.
func (b *Buffer) ReadFrom(r io.Reader) (n int64, err error) {
	if b.chunk == nil {
		b.chunk = MakeSlice[byte](b.scope, readChunkSize, readChunkSize)
	}
	for {
		nr, er := r.Read(b.chunk)
		if nr > 0 {
			_, _ = b.Write(b.chunk[:nr])
			n += int64(nr)
		}
		if er == io.EOF {
			return n, nil
		}
		if er != nil {
			return n, er
		}
	}
}

// Bytes returns the unread portion. It is valid until the next modification.
func (b *Buffer) Bytes() []byte {
	if len(b.buf) == 0 {
		return []byte{}
	}
	return b.buf
}

// String returns the unread portion as a string copied to the Go heap.
func (b *Buffer) String() string {
	return string(b.buf)
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Cap returns the capacity of the current storage.
func (b *Buffer) Cap() int {
	return cap(b.buf)
}

// Reset empties the buffer but keeps its storage.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
}

// Truncate discards all but the first n unread bytes.
// It panics if n is negative or greater than the length of the buffer.
func (b *Buffer) Truncate(n int) {
	if n < 0 || n > len(b.buf) {
		panic("arena: truncation out of range")
	}
	b.buf = b.buf[:n]
}

// consume drops the first n bytes, shifting the rest to the front so the
// storage is reused.
func (b *Buffer) consume(n int) {
	rest := copy(b.buf, b.buf[n:])
	b.buf = b.buf[:rest]
}

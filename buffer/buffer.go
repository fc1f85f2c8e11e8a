// Package buffer provides the const/mutable byte-range value types the rest
// of this module's I/O operations are built on: a byte slice already is a
// pointer+length pair in Go, so ConstBuffer/MutableBuffer are thin named
// slice types carrying the prefix/suffix/advance arithmetic spec §3 and §8
// require, rather than a hand-rolled pointer+size struct.
package buffer

// MutableBuffer is a writable view over a byte range.
type MutableBuffer []byte

// ConstBuffer is a read-only view over a byte range. Go cannot enforce
// immutability through the type system the way a const pointer can in the
// original; callers are expected to treat a ConstBuffer as read-only by
// convention, the same way this corpus treats a `[]byte` parameter it never
// intends to mutate.
type ConstBuffer []byte

// Data returns the underlying pointer-equivalent slice.
func (b MutableBuffer) Data() []byte { return b }

// Data returns the underlying pointer-equivalent slice.
func (b ConstBuffer) Data() []byte { return b }

// Size returns the number of bytes in the view.
func (b MutableBuffer) Size() int { return len(b) }

// Size returns the number of bytes in the view.
func (b ConstBuffer) Size() int { return len(b) }

// Empty reports whether the view has zero length.
func (b MutableBuffer) Empty() bool { return len(b) == 0 }

// Empty reports whether the view has zero length.
func (b ConstBuffer) Empty() bool { return len(b) == 0 }

// Advance returns b advanced by n bytes, saturating at b.Size() (spec §3:
// "buffer += n is saturating").
func (b MutableBuffer) Advance(n int) MutableBuffer {
	if n >= len(b) {
		return b[len(b):]
	}
	if n < 0 {
		n = 0
	}
	return b[n:]
}

// Advance returns b advanced by n bytes, saturating at b.Size().
func (b ConstBuffer) Advance(n int) ConstBuffer {
	if n >= len(b) {
		return b[len(b):]
	}
	if n < 0 {
		n = 0
	}
	return b[n:]
}

// Prefix returns the first n bytes of b, clamped to b.Size().
func (b MutableBuffer) Prefix(n int) MutableBuffer {
	if n >= len(b) {
		return b
	}
	if n < 0 {
		n = 0
	}
	return b[:n]
}

// Prefix returns the first n bytes of b, clamped to b.Size().
func (b ConstBuffer) Prefix(n int) ConstBuffer {
	if n >= len(b) {
		return b
	}
	if n < 0 {
		n = 0
	}
	return b[:n]
}

// Suffix returns the last n bytes of b, clamped to b.Size().
func (b MutableBuffer) Suffix(n int) MutableBuffer {
	if n >= len(b) {
		return b
	}
	if n < 0 {
		n = 0
	}
	return b[len(b)-n:]
}

// Suffix returns the last n bytes of b, clamped to b.Size().
func (b ConstBuffer) Suffix(n int) ConstBuffer {
	if n >= len(b) {
		return b
	}
	if n < 0 {
		n = 0
	}
	return b[len(b)-n:]
}

// AsConst returns a read-only view of a mutable buffer.
func (b MutableBuffer) AsConst() ConstBuffer { return ConstBuffer(b) }

package buffer

// MutableBufferSpan is an ordered array of mutable buffers, the vectored-IO
// counterpart of MutableBuffer (backs READV/WRITEV-style operations).
type MutableBufferSpan []MutableBuffer

// ConstBufferSpan is an ordered array of const buffers.
type ConstBufferSpan []ConstBuffer

// Size returns the total byte count across every buffer in the span.
func (s MutableBufferSpan) Size() int {
	n := 0
	for _, b := range s {
		n += b.Size()
	}
	return n
}

// Size returns the total byte count across every buffer in the span.
func (s ConstBufferSpan) Size() int {
	n := 0
	for _, b := range s {
		n += b.Size()
	}
	return n
}

// Bytes copies every buffer in the span into a single contiguous slice, in
// order. Used by tests that need to compare span contents against a flat
// expected byte sequence.
func (s MutableBufferSpan) Bytes() []byte {
	out := make([]byte, 0, s.Size())
	for _, b := range s {
		out = append(out, b...)
	}
	return out
}

// Bytes copies every buffer in the span into a single contiguous slice.
func (s ConstBufferSpan) Bytes() []byte {
	out := make([]byte, 0, s.Size())
	for _, b := range s {
		out = append(out, b...)
	}
	return out
}

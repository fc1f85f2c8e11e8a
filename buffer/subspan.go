package buffer

// ConstSubspan is a view over a ConstBufferSpan with independent head/tail
// offsets, counted in bytes from the front and the back of the whole span
// (an offset may reach past the first or last element into its
// neighbours). It lets a combinator like buffered_sequence advance through
// a multi-buffer span one byte range at a time without copying or
// re-slicing the underlying buffers.
type ConstSubspan struct {
	buffers    ConstBufferSpan
	headOffset int // bytes consumed from the front of the whole span
	tailOffset int // bytes hidden from the back of the whole span
}

// NewConstSubspan returns a subspan covering the whole of buffers.
func NewConstSubspan(buffers ConstBufferSpan) ConstSubspan {
	return ConstSubspan{buffers: buffers}
}

// Buffers materializes the span of buffers this subspan currently covers.
// headOffset/tailOffset are byte counts into the whole span, not just the
// first/last element, so an offset spanning several small buffers drops or
// trims each of them in turn — walking the result yields exactly the bytes
// of the underlying span with the offsets applied, the invariant spec §8
// requires.
func (s ConstSubspan) Buffers() ConstBufferSpan {
	total := s.buffers.Size()
	lo := s.headOffset
	hi := total - s.tailOffset
	if lo < 0 {
		lo = 0
	}
	if hi > total {
		hi = total
	}
	if hi < lo {
		hi = lo
	}

	out := make(ConstBufferSpan, 0, len(s.buffers))
	pos := 0
	for _, b := range s.buffers {
		start := pos
		end := pos + b.Size()
		pos = end

		clipLo := lo
		if clipLo < start {
			clipLo = start
		}
		clipHi := hi
		if clipHi > end {
			clipHi = end
		}
		if clipHi <= clipLo {
			continue
		}
		out = append(out, b.Advance(clipLo-start).Prefix(clipHi-clipLo))
	}
	return out
}

// Size returns the total number of bytes this subspan currently covers.
func (s ConstSubspan) Size() int {
	return s.buffers.Size() - s.headOffset - s.tailOffset
}

// Bytes materializes the subspan's bytes into one contiguous slice.
func (s ConstSubspan) Bytes() []byte {
	return s.Buffers().Bytes()
}

// AdvanceHead consumes n bytes from the front of the subspan, saturating at
// Size().
func (s ConstSubspan) AdvanceHead(n int) ConstSubspan {
	if n < 0 {
		n = 0
	}
	remaining := s.Size()
	if n > remaining {
		n = remaining
	}
	s.headOffset += n
	return s
}

// TrimTail drops n bytes from the back of the subspan, saturating at
// Size().
func (s ConstSubspan) TrimTail(n int) ConstSubspan {
	if n < 0 {
		n = 0
	}
	remaining := s.Size()
	if n > remaining {
		n = remaining
	}
	s.tailOffset += n
	return s
}

package buffer

import (
	"bytes"
	"testing"
)

func TestConstBufferPrefixSuffixPartition(t *testing.T) {
	data := []byte("hello world!")
	b := ConstBuffer(data)

	for n := 0; n <= b.Size(); n++ {
		prefix := b.Prefix(n)
		suffix := b.Suffix(b.Size() - n)

		if prefix.Size()+suffix.Size() != b.Size() {
			t.Fatalf("n=%d: prefix.Size()+suffix.Size() = %d, want %d",
				n, prefix.Size()+suffix.Size(), b.Size())
		}
		if !bytes.Equal(prefix.Data(), data[:n]) {
			t.Errorf("n=%d: prefix = %q, want %q", n, prefix.Data(), data[:n])
		}
		if !bytes.Equal(suffix.Data(), data[n:]) {
			t.Errorf("n=%d: suffix = %q, want %q", n, suffix.Data(), data[n:])
		}
	}
}

func TestMutableBufferAdvanceSaturates(t *testing.T) {
	b := MutableBuffer([]byte("abcdef"))

	if got := b.Advance(3).Size(); got != 3 {
		t.Errorf("Advance(3).Size() = %d, want 3", got)
	}
	if got := b.Advance(1000).Size(); got != 0 {
		t.Errorf("Advance(1000).Size() = %d, want 0 (saturating)", got)
	}
	if got := b.Advance(-5).Size(); got != b.Size() {
		t.Errorf("Advance(-5).Size() = %d, want %d (clamped to 0)", got, b.Size())
	}
}

func TestConstBufferSpanSize(t *testing.T) {
	span := ConstBufferSpan{
		ConstBuffer("ab"),
		ConstBuffer("cde"),
		ConstBuffer(""),
	}
	if got := span.Size(); got != 5 {
		t.Errorf("Size() = %d, want 5", got)
	}
	if got := string(span.Bytes()); got != "abcde" {
		t.Errorf("Bytes() = %q, want %q", got, "abcde")
	}
}

func TestConstSubspanWalkMatchesUnderlyingWithOffsets(t *testing.T) {
	span := ConstBufferSpan{
		ConstBuffer("0123"),
		ConstBuffer("4567"),
		ConstBuffer("89ab"),
	}
	full := span.Bytes() // "0123456789ab"

	sub := NewConstSubspan(span).AdvanceHead(2).TrimTail(3)
	want := full[2 : len(full)-3]

	if got := sub.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("subspan bytes = %q, want %q", got, want)
	}
	if sub.Size() != len(want) {
		t.Errorf("Size() = %d, want %d", sub.Size(), len(want))
	}
}

func TestConstSubspanAdvanceAcrossMultipleBuffers(t *testing.T) {
	span := ConstBufferSpan{ConstBuffer("aa"), ConstBuffer("bb"), ConstBuffer("cc")}
	full := span.Bytes()

	for n := 0; n <= len(full); n++ {
		sub := NewConstSubspan(span).AdvanceHead(n)
		want := full[n:]
		if got := sub.Bytes(); !bytes.Equal(got, want) {
			t.Errorf("AdvanceHead(%d) = %q, want %q", n, got, want)
		}
	}
}

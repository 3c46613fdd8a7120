package drain

import (
	"bytes"
	"fmt"
	"testing"
)

func TestRingUnderCapacity(t *testing.T) {
	r := NewRing(16)
	r.Write([]byte("hello"))
	if got := r.Snapshot(); !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q", got)
	}
	if r.Len() != 5 {
		t.Fatalf("len=%d", r.Len())
	}
}

func TestRingDropOldestByContent(t *testing.T) {
	// Overflow must keep exactly the most recent capacity bytes, verified
	// by content rather than just size.
	r := NewRing(8)
	for i := 0; i < 4; i++ {
		fmt.Fprintf(r, "%d%d%d%d", i, i, i, i)
	}
	want := []byte("22223333")
	if got := r.Snapshot(); !bytes.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRingOversizeWrite(t *testing.T) {
	r := NewRing(4)
	r.Write([]byte("0123456789"))
	if got := r.Snapshot(); !bytes.Equal(got, []byte("6789")) {
		t.Fatalf("got %q", got)
	}
}

func TestRingWrapBoundary(t *testing.T) {
	r := NewRing(5)
	r.Write([]byte("abc"))
	r.Write([]byte("de")) // exactly full
	if got := r.Snapshot(); !bytes.Equal(got, []byte("abcde")) {
		t.Fatalf("full: got %q", got)
	}
	r.Write([]byte("f")) // evicts "a"
	if got := r.Snapshot(); !bytes.Equal(got, []byte("bcdef")) {
		t.Fatalf("after wrap: got %q", got)
	}
}

func TestRingByteAtATime(t *testing.T) {
	r := NewRing(3)
	for _, b := range []byte("abcdefg") {
		r.Write([]byte{b})
	}
	if got := r.Snapshot(); !bytes.Equal(got, []byte("efg")) {
		t.Fatalf("got %q", got)
	}
}

func TestRingDefaultCapacity(t *testing.T) {
	r := NewRing(0)
	if r.Capacity() != DefaultRingCapacity {
		t.Fatalf("capacity=%d", r.Capacity())
	}
}

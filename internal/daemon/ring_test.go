package daemon

import (
	"bytes"
	"strings"
	"testing"
)

func TestScrollbackRing_UnderSize(t *testing.T) {
	r := NewScrollbackRing(16)
	r.Write([]byte("hello"))
	if got := r.Contents(); !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("expected 'hello', got %q", got)
	}
}

func TestScrollbackRing_ExactSize(t *testing.T) {
	r := NewScrollbackRing(5)
	r.Write([]byte("abcde"))
	if got := r.Contents(); !bytes.Equal(got, []byte("abcde")) {
		t.Fatalf("expected 'abcde', got %q", got)
	}
}

func TestScrollbackRing_Wrap(t *testing.T) {
	r := NewScrollbackRing(5)
	r.Write([]byte("abcde"))
	r.Write([]byte("fg"))
	// most recent 5 bytes survive
	if got := r.Contents(); !bytes.Equal(got, []byte("cdefg")) {
		t.Fatalf("expected 'cdefg', got %q", got)
	}
}

func TestScrollbackRing_MultipleWraps(t *testing.T) {
	r := NewScrollbackRing(4)
	r.Write([]byte("abcdefghijklmnop"))
	if got := r.Contents(); !bytes.Equal(got, []byte("mnop")) {
		t.Fatalf("expected 'mnop', got %q", got)
	}
}

func TestScrollbackRing_Empty(t *testing.T) {
	r := NewScrollbackRing(16)
	if got := r.Contents(); len(got) != 0 {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestScrollbackRing_IncrementalWrites(t *testing.T) {
	r := NewScrollbackRing(6)
	r.Write([]byte("ab"))
	r.Write([]byte("cd"))
	r.Write([]byte("ef"))
	r.Write([]byte("gh"))
	if got := r.Contents(); !bytes.Equal(got, []byte("cdefgh")) {
		t.Fatalf("expected 'cdefgh', got %q", got)
	}
}

func TestScrollbackRing_MixedWriteSizes(t *testing.T) {
	r := NewScrollbackRing(8)
	r.Write([]byte("abc"))
	r.Write([]byte("defgh")) // exactly full
	if got := r.Contents(); !bytes.Equal(got, []byte("abcdefgh")) {
		t.Fatalf("expected 'abcdefgh', got %q", got)
	}
	r.Write([]byte("ij")) // evicts the two oldest bytes
	if got := r.Contents(); !bytes.Equal(got, []byte("cdefghij")) {
		t.Fatalf("expected 'cdefghij', got %q", got)
	}
}

func TestScrollbackRing_OversizeWriteKeepsTail(t *testing.T) {
	r := NewScrollbackRing(4)
	r.Write([]byte("old"))
	r.Write([]byte("0123456789"))
	if got := r.Contents(); !bytes.Equal(got, []byte("6789")) {
		t.Fatalf("expected '6789', got %q", got)
	}
}

func TestScrollbackRing_WrapSkipsOrphanedUTF8(t *testing.T) {
	// Size 3, write "a─b" = [61 E2 94 80 62]. The wrap overwrites the
	// E2 start byte, leaving orphaned continuations 94 80 at the
	// oldest edge which Contents must skip.
	r := NewScrollbackRing(3)
	r.Write([]byte("a\xe2\x94\x80b"))
	if got := string(r.Contents()); got != "b" {
		t.Fatalf("expected 'b', got %q (% x)", got, r.Contents())
	}
}

func TestScrollbackRing_WrapKeepsCompleteUTF8(t *testing.T) {
	// Size 6, write "abcde" then "─": the split lands so that the
	// reassembled contents still form complete characters.
	r := NewScrollbackRing(6)
	r.Write([]byte("abcde"))
	r.Write([]byte("\xe2\x94\x80"))
	if got := string(r.Contents()); got != "cde─" {
		t.Fatalf("expected 'cde─', got %q", got)
	}
}

func TestIncompleteUTF8Tail(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want int
	}{
		{"empty", nil, 0},
		{"ascii", []byte("hello"), 0},
		{"complete 2-byte", []byte("caf\xc3\xa9"), 0},
		{"incomplete 2-byte", []byte("caf\xc3"), 1},
		{"complete 3-byte", []byte("ab\xe2\x94\x80"), 0},
		{"incomplete 3-byte 1of3", []byte("ab\xe2"), 1},
		{"incomplete 3-byte 2of3", []byte("ab\xe2\x94"), 2},
		{"complete 4-byte", []byte("hi\xf0\x9f\x98\x80"), 0},
		{"incomplete 4-byte", []byte("hi\xf0\x9f\x98"), 3},
	}
	for _, tc := range cases {
		if got := incompleteUTF8Tail(tc.in); got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestIncompleteUTF8Tail_BoxDrawingLine(t *testing.T) {
	line := []byte(strings.Repeat("─", 100)) // 300 bytes of E2 94 80
	if n := incompleteUTF8Tail(line[:len(line)-2]); n != 1 {
		t.Fatalf("expected 1 (lone E2 start byte), got %d", n)
	}
	if n := incompleteUTF8Tail(line[:len(line)-1]); n != 2 {
		t.Fatalf("expected 2 (E2 94 without final 80), got %d", n)
	}
}

func TestSkipLeadingContinuationBytes(t *testing.T) {
	data := []byte{0x94, 0x80, 'h', 'i'}
	if got := skipLeadingContinuationBytes(data); !bytes.Equal(got, []byte("hi")) {
		t.Fatalf("expected 'hi', got %q", got)
	}
	if got := skipLeadingContinuationBytes([]byte("hi")); !bytes.Equal(got, []byte("hi")) {
		t.Fatalf("expected 'hi' untouched, got %q", got)
	}
}

// Package daemon owns PTY sessions and serves the control channel.
// Each session runs one child process on a PTY; its output is fed
// through the escape-sequence machine into a grid, published to shared
// memory, and mirrored into a raw scrollback ring for attach replay.
package daemon

import "sync"

// ScrollbackRing is a thread-safe circular byte buffer holding the
// most recent raw PTY output. Oldest data is silently overwritten when
// the buffer is full.
type ScrollbackRing struct {
	mu    sync.Mutex
	buf   []byte
	start int // index of the oldest stored byte
	n     int // bytes stored, at most len(buf)
}

func NewScrollbackRing(size int) *ScrollbackRing {
	return &ScrollbackRing{buf: make([]byte, size)}
}

// Write appends data to the ring, evicting the oldest bytes on overflow.
func (r *ScrollbackRing) Write(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := len(r.buf)
	if len(data) >= size {
		// The write alone fills the ring; prior contents are gone.
		copy(r.buf, data[len(data)-size:])
		r.start, r.n = 0, size
		return
	}
	end := (r.start + r.n) % size
	w := copy(r.buf[end:], data)
	copy(r.buf, data[w:])
	r.n += len(data)
	if r.n > size {
		r.start = (r.start + r.n - size) % size
		r.n = size
	}
}

// Contents returns the ring contents oldest-first as a fresh slice.
// Eviction can split a multi-byte UTF-8 character, leaving orphaned
// continuation bytes at the oldest edge; those are skipped so replay
// starts on a character boundary.
func (r *ScrollbackRing) Contents() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, r.n)
	tail := r.buf[r.start:min(r.start+r.n, len(r.buf))]
	w := copy(out, tail)
	copy(out[w:], r.buf[:r.n-w])
	if r.n < len(r.buf) {
		// Nothing evicted yet; the holdback in the session reader
		// guarantees stored data starts on a character boundary.
		return out
	}
	return skipLeadingContinuationBytes(out)
}

// incompleteUTF8Tail returns the number of trailing bytes that form an
// incomplete multi-byte UTF-8 sequence. The session reader holds these
// back until more data arrives so replay text never carries a torn
// character.
func incompleteUTF8Tail(data []byte) int {
	n := len(data)
	if n == 0 || data[n-1] < 0x80 {
		return 0
	}
	// Scan backwards for the start byte of the last sequence. Start
	// bytes are 11xxxxxx; continuations are 10xxxxxx.
	for i := 0; i < 4 && i < n; i++ {
		b := data[n-1-i]
		if b&0xC0 != 0x80 {
			var seqLen int
			switch {
			case b&0xE0 == 0xC0:
				seqLen = 2
			case b&0xF0 == 0xE0:
				seqLen = 3
			case b&0xF8 == 0xF0:
				seqLen = 4
			default:
				return 0 // not a valid start byte, send as-is
			}
			if have := i + 1; have < seqLen {
				return have
			}
			return 0
		}
	}
	// 4+ continuation bytes in a row: invalid UTF-8, send as-is
	return 0
}

// skipLeadingContinuationBytes drops orphaned continuation bytes at
// the start of data.
func skipLeadingContinuationBytes(data []byte) []byte {
	i := 0
	for i < len(data) && i < 4 && data[i]&0xC0 == 0x80 {
		i++
	}
	return data[i:]
}

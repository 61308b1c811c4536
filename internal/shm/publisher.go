package shm

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/driftterm/driftterm/internal/term"
)

// Publisher is the single-writer side of a segment. Every Publish
// follows the seqlock discipline: bump the sequence to odd, mutate,
// bump back to even. Readers that observe an odd or changed sequence
// discard their copy and retry, so the writer never waits on them.
//
// Only one goroutine may publish to a segment at a time; the session's
// reader goroutine serializes grid mutation and publication.
type Publisher struct {
	seg *Segment
}

// NewPublisher wraps a created segment for writing.
func NewPublisher(seg *Segment) *Publisher {
	return &Publisher{seg: seg}
}

// Publish copies the grid and cursor state into the segment under one
// seqlock write section.
func (p *Publisher) Publish(g *term.Grid) error {
	cols, rows := g.Cols(), g.Rows()
	if cols < 1 || cols > MaxCols || rows < 1 || rows > MaxRows {
		return fmt.Errorf("grid %dx%d exceeds segment capacity %dx%d", cols, rows, MaxCols, MaxRows)
	}
	s := p.seg
	atomic.AddUint64(s.u64(offSequence), 1) // odd: write in progress
	for row := 0; row < rows; row++ {
		copy(s.cells[row*RowStride:], cellBytes(g.Row(row)))
	}
	atomic.StoreUint32(s.u32(offCols), uint32(cols))
	atomic.StoreUint32(s.u32(offRows), uint32(rows))
	atomic.StoreUint32(s.u32(offCursorX), uint32(g.CursorX))
	atomic.StoreUint32(s.u32(offCursorY), uint32(g.CursorY))
	atomic.StoreUint32(s.u32(offCursorVis), boolWord(g.CursorVisible))
	atomic.OrUint32(s.u32(offFlags), flagDirty)
	atomic.AddUint64(s.u64(offSequence), 1) // even: stable
	return nil
}

// BumpGeneration advances the resize generation. The daemon calls this
// after applying a resize, before publishing the first frame at the
// new dimensions; readers treat snapshots from other generations as
// stale and wait for the resize ack to carry the new one.
func (p *Publisher) BumpGeneration() uint64 {
	return atomic.AddUint64(p.seg.u64(offGeneration), 1)
}

// SetErrorMode flips the error-mode flag. While set, clients render
// the published grid as a daemon-side failure banner rather than live
// terminal content.
func (p *Publisher) SetErrorMode(on bool) {
	if on {
		atomic.OrUint32(p.seg.u32(offFlags), flagErrorMode)
	} else {
		atomic.AndUint32(p.seg.u32(offFlags), ^flagErrorMode)
	}
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// cellBytes views a row of cells as raw bytes for the copy into the
// mapped region. Cell is a fixed 16-byte POD so this is just a
// reinterpretation, not an encode.
func cellBytes(cells []term.Cell) []byte {
	if len(cells) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&cells[0])), len(cells)*term.CellSize)
}

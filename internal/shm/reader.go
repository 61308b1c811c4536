package shm

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/driftterm/driftterm/internal/term"
)

// Retryable single-attempt outcomes. Read folds these into retries;
// ErrWriterStalled is the terminal liveness failure.
var (
	// ErrWriteInProgress means the sequence was odd: the writer was
	// mid-publish when we looked.
	ErrWriteInProgress = errors.New("shm: write in progress")

	// ErrTorn means the sequence moved while we were copying; the
	// snapshot mixed two frames and was discarded.
	ErrTorn = errors.New("shm: torn read")

	// ErrWriterStalled means the retry budget elapsed without a
	// stable frame. On its own it cannot distinguish a busy writer
	// from a dead one; callers consult control-channel liveness
	// (heartbeats) to tell the difference.
	ErrWriterStalled = errors.New("shm: writer stalled")
)

// Snapshot is a self-consistent copy of one published frame. It is
// plain process-local memory; the caller owns it outright.
type Snapshot struct {
	Sequence      uint64
	Generation    uint64
	Cols          int
	Rows          int
	CursorX       int
	CursorY       int
	CursorVisible bool
	ErrorMode     bool

	// cells holds Rows rows at MaxCols stride, mirroring the segment
	// layout so repeated reads reuse the allocation.
	cells []term.Cell
}

// Cell returns the cell at (col, row) of the snapshot.
func (s *Snapshot) Cell(col, row int) term.Cell {
	if col < 0 || col >= s.Cols || row < 0 || row >= s.Rows {
		return term.Blank(term.DefaultFG, term.DefaultBG)
	}
	return s.cells[row*MaxCols+col]
}

// Row returns the live cells of one snapshot row.
func (s *Snapshot) Row(row int) []term.Cell {
	return s.cells[row*MaxCols : row*MaxCols+s.Cols]
}

// Reader is the consuming side of a segment. It remembers the last
// sequence it returned so callers can poll cheaply.
type Reader struct {
	seg     *Segment
	lastSeq uint64
}

// NewReader wraps an opened segment for reading.
func NewReader(seg *Segment) *Reader {
	return &Reader{seg: seg}
}

// Changed reports whether the segment has a frame newer than the last
// snapshot this reader returned. It never blocks; pollers call it
// every tick and skip the copy when nothing moved.
func (r *Reader) Changed() bool {
	seq := r.seg.Sequence()
	return seq != r.lastSeq && seq&1 == 0
}

// TryRead attempts a single snapshot copy into snap. It returns
// ErrWriteInProgress or ErrTorn when the frame was unstable; both are
// retryable. On success snap holds a consistent frame.
func (r *Reader) TryRead(snap *Snapshot) error {
	s := r.seg
	s1 := atomic.LoadUint64(s.u64(offSequence))
	if s1&1 == 1 {
		return ErrWriteInProgress
	}
	cols := int(atomic.LoadUint32(s.u32(offCols)))
	rows := int(atomic.LoadUint32(s.u32(offRows)))
	if cols < 1 || cols > MaxCols || rows < 1 || rows > MaxRows {
		// header mid-update; treat like any unstable frame
		return ErrTorn
	}
	if snap.cells == nil {
		snap.cells = make([]term.Cell, MaxRows*MaxCols)
	}
	copy(snapBytes(snap.cells[:rows*MaxCols]), s.cells[:rows*RowStride])
	snap.Cols = cols
	snap.Rows = rows
	snap.CursorX = int(atomic.LoadUint32(s.u32(offCursorX)))
	snap.CursorY = int(atomic.LoadUint32(s.u32(offCursorY)))
	snap.CursorVisible = atomic.LoadUint32(s.u32(offCursorVis)) != 0
	snap.ErrorMode = atomic.LoadUint32(s.u32(offFlags))&flagErrorMode != 0
	snap.Generation = atomic.LoadUint64(s.u64(offGeneration))
	if s2 := atomic.LoadUint64(s.u64(offSequence)); s2 != s1 {
		return ErrTorn
	}
	snap.Sequence = s1
	r.lastSeq = s1
	return nil
}

// Read retries TryRead until it succeeds or budget elapses, then
// reports ErrWriterStalled. Early retries spin-yield; later ones back
// off with short sleeps so a stalled writer does not pin a core.
func (r *Reader) Read(snap *Snapshot, budget time.Duration) error {
	deadline := time.Now().Add(budget)
	for attempt := 0; ; attempt++ {
		err := r.TryRead(snap)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrWriteInProgress) && !errors.Is(err, ErrTorn) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %d attempts: %w", ErrWriterStalled, attempt+1, err)
		}
		if attempt < 100 {
			runtime.Gosched()
		} else {
			time.Sleep(100 * time.Microsecond)
		}
	}
}

// AckDirty clears the dirty flag after the caller has rendered the
// frame, so the writer side can tell whether anyone is consuming.
func (r *Reader) AckDirty() {
	atomic.AndUint32(r.seg.u32(offFlags), ^flagDirty)
}

func snapBytes(cells []term.Cell) []byte {
	if len(cells) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&cells[0])), len(cells)*term.CellSize)
}

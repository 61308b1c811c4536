// Package shm publishes terminal grid snapshots through a file-backed
// shared memory segment using a seqlock. The daemon is the single
// writer; any number of client processes map the same file read-mostly
// and copy consistent snapshots out without ever blocking the writer.
package shm

import "github.com/driftterm/driftterm/internal/term"

// Segment layout. All multi-byte fields are native-endian; the build
// is constrained to little-endian platforms so both sides agree.
//
//	0x00  magic      [8]byte  "DRIFTTRM"
//	0x08  version    uint32
//	0x0C  flags      uint32   bit0 dirty, bit1 error mode (atomic)
//	0x10  sequence   uint64   seqlock counter (atomic)
//	0x18  generation uint64   resize generation (atomic)
//	0x20  cols       uint32
//	0x24  rows       uint32
//	0x28  cursorX    uint32
//	0x2C  cursorY    uint32
//	0x30  cursorVis  uint32
//	0x34  pad        uint32
//	0x38  reserved   [8]byte
//	0x40  cells      MaxRows rows of MaxCols cells, 16 bytes each
//
// The cell area always uses the full MaxCols stride regardless of the
// live cols/rows, so a resize never moves cell offsets and a reader
// holding a stale generation still indexes valid memory.
const (
	Magic   = "DRIFTTRM"
	Version = uint32(1)

	HeaderSize = 64

	// MaxCols and MaxRows bound the publishable grid. The segment is
	// sized for the maximum up front; resizes beyond it are rejected
	// at the control channel.
	MaxCols = 200
	MaxRows = 100

	RowStride = MaxCols * term.CellSize
	CellsSize = MaxRows * RowStride

	SegmentSize = HeaderSize + CellsSize
)

// Header field offsets.
const (
	offMagic      = 0x00
	offVersion    = 0x08
	offFlags      = 0x0C
	offSequence   = 0x10
	offGeneration = 0x18
	offCols       = 0x20
	offRows       = 0x24
	offCursorX    = 0x28
	offCursorY    = 0x2C
	offCursorVis  = 0x30
	offCells      = HeaderSize
)

// Flag bits.
const (
	flagDirty     = uint32(1 << 0)
	flagErrorMode = uint32(1 << 1)
)

// Package term holds the in-memory screen model: fixed-size cells, the
// grid they live in, and the ANSI color palette. The grid is mutated by
// exactly one goroutine at a time; publication to other processes goes
// through the shared-memory layer, which copies cells out wholesale.
package term

// Attr is a bitmask of per-cell rendering attributes.
type Attr uint8

const (
	AttrBold Attr = 1 << iota
	AttrDim
	AttrItalic
	AttrUnderline
	AttrInverse
	AttrStrike
	// AttrWide marks the leading cell of a double-width glyph.
	AttrWide
	// AttrContinuation marks the trailing half of a double-width glyph.
	// The cell's rune is zero and renderers skip it.
	AttrContinuation
)

// Colors are packed 0xRRGGBBAA with alpha always 0xFF. Packing keeps
// Cell a fixed-size POD so the whole grid can be copied into shared
// memory with a single memmove per row.
const (
	DefaultFG uint32 = 0xCCCCCCFF
	DefaultBG uint32 = 0x000000FF
)

// Cell is one character cell. The layout is part of the shared-memory
// ABI: 16 bytes, no pointers, native field order. Do not reorder.
type Cell struct {
	Rune uint32
	FG   uint32
	BG   uint32
	Attr Attr
	_    [3]byte
}

// CellSize is the wire size of Cell in the shared segment.
const CellSize = 16

// Blank returns an empty cell carrying the given colors. Clearing
// operations use the current background so SGR-set backgrounds persist
// through ED/EL, matching how real terminals erase.
func Blank(fg, bg uint32) Cell {
	return Cell{Rune: ' ', FG: fg, BG: bg}
}

// PackRGB packs an opaque color into the cell color format.
func PackRGB(r, g, b uint8) uint32 {
	return uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | 0xFF
}

// UnpackRGB splits a packed cell color back into components.
func UnpackRGB(c uint32) (r, g, b uint8) {
	return uint8(c >> 24), uint8(c >> 16), uint8(c >> 8)
}

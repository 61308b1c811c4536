package term

// Grid is a rectangular screen of cells plus cursor state. It is not
// safe for concurrent use; the owning session serializes access.
type Grid struct {
	cols, rows int
	cells      []Cell // row-major, len == cols*rows

	CursorX       int
	CursorY       int
	CursorVisible bool
}

// NewGrid returns a cols x rows grid cleared to the default colors with
// the cursor at the origin and visible.
func NewGrid(cols, rows int) *Grid {
	g := &Grid{
		cols:          cols,
		rows:          rows,
		cells:         make([]Cell, cols*rows),
		CursorVisible: true,
	}
	g.Fill(Blank(DefaultFG, DefaultBG))
	return g
}

func (g *Grid) Cols() int { return g.cols }
func (g *Grid) Rows() int { return g.rows }

// Cell returns the cell at (col, row). Out-of-range coordinates return
// a default blank so renderers never index past the buffer.
func (g *Grid) Cell(col, row int) Cell {
	if col < 0 || col >= g.cols || row < 0 || row >= g.rows {
		return Blank(DefaultFG, DefaultBG)
	}
	return g.cells[row*g.cols+col]
}

// Set writes the cell at (col, row). Out-of-range writes are dropped.
func (g *Grid) Set(col, row int, c Cell) {
	if col < 0 || col >= g.cols || row < 0 || row >= g.rows {
		return
	}
	g.cells[row*g.cols+col] = c
}

// Row returns the backing slice for one row. The publisher copies rows
// out of this slice; callers must not hold it across a Resize.
func (g *Grid) Row(row int) []Cell {
	return g.cells[row*g.cols : (row+1)*g.cols]
}

// Fill sets every cell to c.
func (g *Grid) Fill(c Cell) {
	for i := range g.cells {
		g.cells[i] = c
	}
}

// fillRange sets cells[from:to) on one row, both clamped.
func (g *Grid) fillRow(row, from, to int, c Cell) {
	if row < 0 || row >= g.rows {
		return
	}
	if from < 0 {
		from = 0
	}
	if to > g.cols {
		to = g.cols
	}
	base := row * g.cols
	for i := from; i < to; i++ {
		g.cells[base+i] = c
	}
}

// ClearLineRight erases from the cursor to the end of the cursor row.
func (g *Grid) ClearLineRight(blank Cell) {
	g.fillRow(g.CursorY, g.CursorX, g.cols, blank)
}

// ClearLineLeft erases from the start of the cursor row through the cursor.
func (g *Grid) ClearLineLeft(blank Cell) {
	g.fillRow(g.CursorY, 0, g.CursorX+1, blank)
}

// ClearLine erases the whole cursor row.
func (g *Grid) ClearLine(blank Cell) {
	g.fillRow(g.CursorY, 0, g.cols, blank)
}

// ClearBelow erases from the cursor to the end of the screen.
func (g *Grid) ClearBelow(blank Cell) {
	g.ClearLineRight(blank)
	for row := g.CursorY + 1; row < g.rows; row++ {
		g.fillRow(row, 0, g.cols, blank)
	}
}

// ClearAbove erases from the start of the screen through the cursor.
func (g *Grid) ClearAbove(blank Cell) {
	for row := 0; row < g.CursorY; row++ {
		g.fillRow(row, 0, g.cols, blank)
	}
	g.ClearLineLeft(blank)
}

// ScrollUp shifts the screen contents up by n rows and fills the
// vacated bottom rows with blank. The cursor does not move.
func (g *Grid) ScrollUp(n int, blank Cell) {
	if n <= 0 {
		return
	}
	if n >= g.rows {
		g.Fill(blank)
		return
	}
	copy(g.cells, g.cells[n*g.cols:])
	for i := (g.rows - n) * g.cols; i < len(g.cells); i++ {
		g.cells[i] = blank
	}
}

// MoveCursor places the cursor at (col, row), clamped to the grid.
func (g *Grid) MoveCursor(col, row int) {
	g.CursorX = clamp(col, 0, g.cols-1)
	g.CursorY = clamp(row, 0, g.rows-1)
}

// ClampCursor pulls an out-of-range cursor back inside the grid.
// Resize and relative motion both funnel through this.
func (g *Grid) ClampCursor() {
	g.MoveCursor(g.CursorX, g.CursorY)
}

// Resize changes the grid dimensions in place. Content anchored at the
// top-left is preserved; new area is filled with blank, excess content
// at the right and bottom is dropped. The cursor is clamped into the
// new bounds.
func (g *Grid) Resize(cols, rows int, blank Cell) {
	if cols == g.cols && rows == g.rows {
		return
	}
	next := make([]Cell, cols*rows)
	for i := range next {
		next[i] = blank
	}
	copyRows := min(rows, g.rows)
	copyCols := min(cols, g.cols)
	for row := 0; row < copyRows; row++ {
		copy(next[row*cols:row*cols+copyCols], g.cells[row*g.cols:row*g.cols+copyCols])
	}
	g.cols, g.rows, g.cells = cols, rows, next
	g.ClampCursor()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package daemon

import "github.com/driftterm/driftterm/internal/term"

// writeBanner paints a daemon-side failure message across the top of
// the grid in inverse red so the client renders something explanatory
// instead of a frozen frame. The rest of the grid is left untouched;
// the segment's error-mode flag tells the client this is a banner, not
// terminal content.
func writeBanner(g *term.Grid, msg string) {
	fg := term.PackRGB(0xFF, 0xFF, 0xFF)
	bg := term.PackRGB(0xCC, 0x22, 0x22)
	cols := g.Cols()

	row := 0
	col := 0
	blankLine := func(r int) {
		for c := 0; c < cols; c++ {
			g.Set(c, r, term.Blank(fg, bg))
		}
	}
	blankLine(0)
	for _, r := range msg {
		if r == '\n' {
			row++
			col = 0
			if row >= g.Rows() {
				break
			}
			blankLine(row)
			continue
		}
		if col >= cols {
			row++
			col = 0
			if row >= g.Rows() {
				break
			}
			blankLine(row)
		}
		g.Set(col, row, term.Cell{Rune: uint32(r), FG: fg, BG: bg, Attr: term.AttrBold})
		col++
	}
	g.CursorVisible = false
}

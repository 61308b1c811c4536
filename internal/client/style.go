package client

import (
	"github.com/gdamore/tcell/v2"

	"github.com/driftterm/driftterm/internal/term"
)

// cellStyle converts a grid cell's colors and attributes to tcell.
// Colors are always concrete RGB; the daemon resolved palette indices
// when it applied SGR.
func cellStyle(c term.Cell) tcell.Style {
	fr, fg, fb := term.UnpackRGB(c.FG)
	br, bg, bb := term.UnpackRGB(c.BG)
	style := tcell.StyleDefault.
		Foreground(tcell.NewRGBColor(int32(fr), int32(fg), int32(fb))).
		Background(tcell.NewRGBColor(int32(br), int32(bg), int32(bb)))
	if c.Attr&term.AttrBold != 0 {
		style = style.Bold(true)
	}
	if c.Attr&term.AttrDim != 0 {
		style = style.Dim(true)
	}
	if c.Attr&term.AttrItalic != 0 {
		style = style.Italic(true)
	}
	if c.Attr&term.AttrUnderline != 0 {
		style = style.Underline(true)
	}
	if c.Attr&term.AttrStrike != 0 {
		style = style.StrikeThrough(true)
	}
	// Inverse was already applied to the colors at write time; no
	// tcell reverse attribute needed.
	return style
}

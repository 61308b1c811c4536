package client

import (
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/driftterm/driftterm/internal/term"
)

func TestCellStyle_ColorsAndAttrs(t *testing.T) {
	c := term.Cell{
		Rune: 'x',
		FG:   term.PackRGB(0x11, 0x22, 0x33),
		BG:   term.PackRGB(0xAA, 0xBB, 0xCC),
		Attr: term.AttrBold | term.AttrUnderline,
	}
	fg, bg, attrs := cellStyle(c).Decompose()
	if fg != tcell.NewRGBColor(0x11, 0x22, 0x33) {
		t.Fatalf("unexpected fg %v", fg)
	}
	if bg != tcell.NewRGBColor(0xAA, 0xBB, 0xCC) {
		t.Fatalf("unexpected bg %v", bg)
	}
	if attrs&tcell.AttrBold == 0 || attrs&tcell.AttrUnderline == 0 {
		t.Fatalf("expected bold+underline, got %v", attrs)
	}
	if attrs&tcell.AttrReverse != 0 {
		t.Fatalf("reverse must not be set; colors are pre-swapped")
	}
}

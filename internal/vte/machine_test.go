package vte

import (
	"strings"
	"testing"

	"github.com/driftterm/driftterm/internal/term"
)

func newMachine(cols, rows int) *Machine {
	return New(term.NewGrid(cols, rows))
}

func rowText(g *term.Grid, row, n int) string {
	var b strings.Builder
	for col := 0; col < n; col++ {
		b.WriteRune(rune(g.Cell(col, row).Rune))
	}
	return b.String()
}

func TestMachine_ClearHomeAndPrint(t *testing.T) {
	m := newMachine(80, 24)
	m.Feed([]byte("junk to be wiped\n\nmore junk"))
	m.Feed([]byte("\x1b[2J\x1b[HHello"))
	if got := rowText(m.Grid(), 0, 5); got != "Hello" {
		t.Fatalf("expected 'Hello' on row 0, got %q", got)
	}
	if m.Grid().Cell(0, 1).Rune != ' ' || m.Grid().Cell(10, 2).Rune != ' ' {
		t.Fatalf("expected rest of screen cleared")
	}
	if m.Grid().CursorX != 5 || m.Grid().CursorY != 0 {
		t.Fatalf("expected cursor at (5,0), got (%d,%d)", m.Grid().CursorX, m.Grid().CursorY)
	}
}

func TestMachine_ByteAtATimeMatchesWhole(t *testing.T) {
	input := []byte("\x1b[2J\x1b[3;7H\x1b[1;38;5;196mhi \xe2\x94\x80 there\x1b[0m\r\nnext")
	whole := newMachine(40, 10)
	whole.Feed(input)
	split := newMachine(40, 10)
	for _, b := range input {
		split.Feed([]byte{b})
	}
	for row := 0; row < 10; row++ {
		for col := 0; col < 40; col++ {
			a, b := whole.Grid().Cell(col, row), split.Grid().Cell(col, row)
			if a != b {
				t.Fatalf("cell (%d,%d) differs: %+v vs %+v", col, row, a, b)
			}
		}
	}
	if whole.Grid().CursorX != split.Grid().CursorX || whole.Grid().CursorY != split.Grid().CursorY {
		t.Fatalf("cursor differs: (%d,%d) vs (%d,%d)",
			whole.Grid().CursorX, whole.Grid().CursorY,
			split.Grid().CursorX, split.Grid().CursorY)
	}
}

func TestMachine_CursorMotion(t *testing.T) {
	m := newMachine(20, 10)
	m.Feed([]byte("\x1b[5;10H"))
	if m.Grid().CursorX != 9 || m.Grid().CursorY != 4 {
		t.Fatalf("expected (9,4), got (%d,%d)", m.Grid().CursorX, m.Grid().CursorY)
	}
	m.Feed([]byte("\x1b[2A\x1b[3C"))
	if m.Grid().CursorX != 12 || m.Grid().CursorY != 2 {
		t.Fatalf("expected (12,2), got (%d,%d)", m.Grid().CursorX, m.Grid().CursorY)
	}
	m.Feed([]byte("\x1b[99B\x1b[99D"))
	if m.Grid().CursorX != 0 || m.Grid().CursorY != 9 {
		t.Fatalf("expected clamped (0,9), got (%d,%d)", m.Grid().CursorX, m.Grid().CursorY)
	}
}

func TestMachine_HugeParamsClamped(t *testing.T) {
	m := newMachine(20, 10)
	m.Feed([]byte("\x1b[99999999;99999999H"))
	if m.Grid().CursorX != 19 || m.Grid().CursorY != 9 {
		t.Fatalf("expected clamped corner, got (%d,%d)", m.Grid().CursorX, m.Grid().CursorY)
	}
}

func TestMachine_TooManyParamsDiscarded(t *testing.T) {
	m := newMachine(20, 10)
	m.Feed([]byte("X\x1b[" + strings.Repeat("1;", 40) + "HY"))
	// The malformed CSI is swallowed whole; X and Y print normally.
	if m.Grid().Cell(0, 0).Rune != 'X' || m.Grid().Cell(1, 0).Rune != 'Y' {
		t.Fatalf("expected XY printed, got %q%q",
			rune(m.Grid().Cell(0, 0).Rune), rune(m.Grid().Cell(1, 0).Rune))
	}
}

func TestMachine_SGRMergeAndReset(t *testing.T) {
	m := newMachine(20, 5)
	m.Feed([]byte("\x1b[1;31mA"))
	a := m.Grid().Cell(0, 0)
	if a.Attr&term.AttrBold == 0 {
		t.Fatalf("expected bold")
	}
	if a.FG != term.Color256(1) {
		t.Fatalf("expected red fg, got %08x", a.FG)
	}
	// 39 resets only the foreground; bold survives.
	m.Feed([]byte("\x1b[39mB"))
	b := m.Grid().Cell(1, 0)
	if b.FG != term.DefaultFG || b.Attr&term.AttrBold == 0 {
		t.Fatalf("expected default fg with bold, got %+v", b)
	}
	m.Feed([]byte("\x1b[0mC"))
	c := m.Grid().Cell(2, 0)
	if c.Attr != 0 || c.FG != term.DefaultFG || c.BG != term.DefaultBG {
		t.Fatalf("expected plain cell after reset, got %+v", c)
	}
}

func TestMachine_SGRExtendedColors(t *testing.T) {
	m := newMachine(20, 5)
	m.Feed([]byte("\x1b[38;5;196mA\x1b[48;2;10;20;30mB"))
	if m.Grid().Cell(0, 0).FG != term.Color256(196) {
		t.Fatalf("expected 256-color fg, got %08x", m.Grid().Cell(0, 0).FG)
	}
	if m.Grid().Cell(1, 0).BG != term.PackRGB(10, 20, 30) {
		t.Fatalf("expected truecolor bg, got %08x", m.Grid().Cell(1, 0).BG)
	}
}

func TestMachine_SGRInverseSwapsAtWrite(t *testing.T) {
	m := newMachine(20, 5)
	m.Feed([]byte("\x1b[7mX"))
	c := m.Grid().Cell(0, 0)
	if c.FG != term.DefaultBG || c.BG != term.DefaultFG {
		t.Fatalf("expected swapped colors, got %+v", c)
	}
}

func TestMachine_EraseLineForms(t *testing.T) {
	m := newMachine(10, 3)
	m.Feed([]byte("abcdefghij\x1b[1;5H"))
	m.Feed([]byte("\x1b[K"))
	if got := rowText(m.Grid(), 0, 10); got != "abcd      " {
		t.Fatalf("EL0: got %q", got)
	}
	m2 := newMachine(10, 3)
	m2.Feed([]byte("abcdefghij\x1b[1;5H\x1b[1K"))
	if got := rowText(m2.Grid(), 0, 10); got != "     fghij" {
		t.Fatalf("EL1: got %q", got)
	}
	m3 := newMachine(10, 3)
	m3.Feed([]byte("abcdefghij\x1b[1;5H\x1b[2K"))
	if got := rowText(m3.Grid(), 0, 10); got != "          " {
		t.Fatalf("EL2: got %q", got)
	}
}

func TestMachine_WrapAndScroll(t *testing.T) {
	m := newMachine(5, 2)
	m.Feed([]byte("abcdefg"))
	// "abcde" fills row 0, f wraps to row 1.
	if got := rowText(m.Grid(), 0, 5); got != "abcde" {
		t.Fatalf("row 0: got %q", got)
	}
	if got := rowText(m.Grid(), 1, 2); got != "fg" {
		t.Fatalf("row 1: got %q", got)
	}
	m.Feed([]byte("hij\r\nscr"))
	// newline at the bottom scrolls: "fghij" moves to row 0.
	if got := rowText(m.Grid(), 0, 5); got != "fghij" {
		t.Fatalf("after scroll row 0: got %q", got)
	}
	if got := rowText(m.Grid(), 1, 3); got != "scr" {
		t.Fatalf("after scroll row 1: got %q", got)
	}
}

func TestMachine_WideGlyph(t *testing.T) {
	m := newMachine(10, 2)
	m.Feed([]byte("a\xe6\x97\xa5b")) // a日b
	lead := m.Grid().Cell(1, 0)
	cont := m.Grid().Cell(2, 0)
	if lead.Rune != 0x65E5 || lead.Attr&term.AttrWide == 0 {
		t.Fatalf("expected wide lead cell, got %+v", lead)
	}
	if cont.Attr&term.AttrContinuation == 0 || cont.Rune != 0 {
		t.Fatalf("expected continuation cell, got %+v", cont)
	}
	if m.Grid().Cell(3, 0).Rune != 'b' {
		t.Fatalf("expected 'b' after wide glyph")
	}
}

func TestMachine_WideGlyphNeverStraddlesRows(t *testing.T) {
	m := newMachine(5, 3)
	m.Feed([]byte("abcd\xe6\x97\xa5")) // one column left, 日 needs two
	if m.Grid().Cell(4, 0).Rune != ' ' {
		t.Fatalf("expected last column of row 0 left blank")
	}
	if m.Grid().Cell(0, 1).Rune != 0x65E5 {
		t.Fatalf("expected wide glyph wrapped to row 1, got %+v", m.Grid().Cell(0, 1))
	}
}

func TestMachine_UTF8SplitAcrossFeeds(t *testing.T) {
	m := newMachine(10, 2)
	m.Feed([]byte{0xE2, 0x94})
	m.Feed([]byte{0x80, 'x'})
	if m.Grid().Cell(0, 0).Rune != 0x2500 {
		t.Fatalf("expected box-drawing rune, got %04x", m.Grid().Cell(0, 0).Rune)
	}
	if m.Grid().Cell(1, 0).Rune != 'x' {
		t.Fatalf("expected 'x' after it")
	}
}

func TestMachine_InvalidUTF8Replaced(t *testing.T) {
	m := newMachine(10, 2)
	m.Feed([]byte{0xC3, 'x'}) // lead byte followed by ASCII
	if m.Grid().Cell(0, 0).Rune != 0xFFFD {
		t.Fatalf("expected replacement rune, got %04x", m.Grid().Cell(0, 0).Rune)
	}
	if m.Grid().Cell(1, 0).Rune != 'x' {
		t.Fatalf("expected 'x' resynchronized")
	}
}

func TestMachine_SaveRestoreCursor(t *testing.T) {
	m := newMachine(20, 10)
	m.Feed([]byte("\x1b[4;6H\x1b[31m\x1b7\x1b[H\x1b[0mmoved\x1b8X"))
	// DECRC restores position and the red pen.
	if m.Grid().Cell(5, 3).Rune != 'X' {
		t.Fatalf("expected X at restored position, got %q at (5,3)", rune(m.Grid().Cell(5, 3).Rune))
	}
	if m.Grid().Cell(5, 3).FG != term.Color256(1) {
		t.Fatalf("expected restored red pen, got %08x", m.Grid().Cell(5, 3).FG)
	}
}

func TestMachine_CursorVisibility(t *testing.T) {
	m := newMachine(10, 5)
	m.Feed([]byte("\x1b[?25l"))
	if m.Grid().CursorVisible {
		t.Fatalf("expected hidden cursor")
	}
	m.Feed([]byte("\x1b[?25h"))
	if !m.Grid().CursorVisible {
		t.Fatalf("expected visible cursor")
	}
}

func TestMachine_OSCTitle(t *testing.T) {
	m := newMachine(10, 5)
	m.Feed([]byte("\x1b]2;my title\x07after"))
	if m.Title() != "my title" {
		t.Fatalf("expected title set, got %q", m.Title())
	}
	if got := rowText(m.Grid(), 0, 5); got != "after" {
		t.Fatalf("expected OSC content kept off the grid, got %q", got)
	}
	// ST-terminated form
	m.Feed([]byte("\x1b]0;other\x1b\\x"))
	if m.Title() != "other" {
		t.Fatalf("expected ST-terminated title, got %q", m.Title())
	}
	if m.Grid().Cell(5, 0).Rune != 'x' {
		t.Fatalf("expected ground resumed after ST")
	}
}

func TestMachine_OversizeOSCDiscarded(t *testing.T) {
	m := newMachine(10, 5)
	m.Feed([]byte("\x1b]2;" + strings.Repeat("a", 5000) + "\x07ok"))
	if m.Title() != "" {
		t.Fatalf("expected oversized title dropped, got %d bytes", len(m.Title()))
	}
	if got := rowText(m.Grid(), 0, 2); got != "ok" {
		t.Fatalf("expected ground resumed, got %q", got)
	}
}

func TestMachine_ControlsDuringEscapeAreHarmless(t *testing.T) {
	m := newMachine(10, 5)
	// An unterminated CSI at end of stream must not corrupt later text
	// once the final byte eventually arrives.
	m.Feed([]byte("\x1b[3"))
	m.Feed([]byte("1mred"))
	if m.Grid().Cell(0, 0).FG != term.Color256(1) {
		t.Fatalf("expected resumed CSI to apply, got %08x", m.Grid().Cell(0, 0).FG)
	}
}

func TestMachine_RedrawIsIdempotent(t *testing.T) {
	frame := []byte("\x1b[2J\x1b[H\x1b[1mheader\x1b[0m\r\n\x1b[32mbody line\x1b[0m\x1b[5;1Hstatus")
	m := newMachine(40, 10)
	m.Feed(frame)
	first := make([]term.Cell, 0, 400)
	for row := 0; row < 10; row++ {
		first = append(first, m.Grid().Row(row)...)
	}
	snap := make([]term.Cell, len(first))
	copy(snap, first)
	m.Feed(frame)
	i := 0
	for row := 0; row < 10; row++ {
		for _, c := range m.Grid().Row(row) {
			if c != snap[i] {
				t.Fatalf("cell %d changed on identical redraw: %+v vs %+v", i, c, snap[i])
			}
			i++
		}
	}
}

func TestMachine_FullReset(t *testing.T) {
	m := newMachine(10, 5)
	m.Feed([]byte("\x1b[31;44mtext\x1b[?25l\x1bc"))
	g := m.Grid()
	if g.Cell(0, 0).Rune != ' ' || !g.CursorVisible || g.CursorX != 0 || g.CursorY != 0 {
		t.Fatalf("expected power-on state after RIS")
	}
	m.Feed([]byte("p"))
	if g.Cell(0, 0).FG != term.DefaultFG {
		t.Fatalf("expected default pen after RIS, got %08x", g.Cell(0, 0).FG)
	}
}

func TestMachine_TabStops(t *testing.T) {
	m := newMachine(20, 3)
	m.Feed([]byte("a\tb\tc"))
	if m.Grid().Cell(8, 0).Rune != 'b' || m.Grid().Cell(16, 0).Rune != 'c' {
		t.Fatalf("expected tab stops every 8, got b@? c@?")
	}
}

func TestMachine_BackspaceClampsAtColumnZero(t *testing.T) {
	m := newMachine(10, 3)
	m.Feed([]byte("\b\bx"))
	if m.Grid().Cell(0, 0).Rune != 'x' {
		t.Fatalf("expected backspace clamped at column 0")
	}
}

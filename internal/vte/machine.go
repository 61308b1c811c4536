// Package vte implements the escape-sequence interpreter that turns a
// raw PTY byte stream into grid mutations. The machine is an explicit
// state enum stepped one byte at a time, so a sequence split across
// read boundaries resumes exactly where it left off.
package vte

import (
	"github.com/mattn/go-runewidth"

	"github.com/driftterm/driftterm/internal/term"
)

type state int

const (
	stateGround state = iota
	stateEscape
	stateEscapeSkip // charset designators: ESC ( X, ESC ) X
	stateCSI
	stateOSC
	stateOSCEscape // saw ESC inside OSC, deciding between ST and abort
)

const (
	maxParams = 16
	maxParam  = 9999
	maxOSC    = 1024
)

// pen is the current SGR rendition applied to printed cells.
type pen struct {
	fg   uint32
	bg   uint32
	attr term.Attr
}

func defaultPen() pen {
	return pen{fg: term.DefaultFG, bg: term.DefaultBG}
}

// Machine interprets terminal output into a Grid. Not safe for
// concurrent use; the session's reader goroutine owns it.
type Machine struct {
	grid *term.Grid
	st   state

	// CSI accumulation
	params   []int
	acc      int
	accSet   bool
	private  byte
	csiBad   bool
	nparams  int

	// OSC accumulation
	osc    []byte
	oscBad bool

	// partial UTF-8 sequence carried across Feed calls
	utf8     [4]byte
	utf8Len  int
	utf8Need int

	p     pen
	saved savedCursor
	title string
}

type savedCursor struct {
	x, y int
	p    pen
	set  bool
}

// New returns a machine writing into grid.
func New(grid *term.Grid) *Machine {
	return &Machine{
		grid:   grid,
		params: make([]int, 0, maxParams),
		osc:    make([]byte, 0, 256),
		p:      defaultPen(),
	}
}

// Grid returns the grid this machine mutates.
func (m *Machine) Grid() *term.Grid { return m.grid }

// Title returns the window title most recently set via OSC 0/2.
func (m *Machine) Title() string { return m.title }

// Feed processes a chunk of PTY output. Partial escape sequences and
// partial UTF-8 runes at the end of the chunk are held and completed
// by the next call.
func (m *Machine) Feed(data []byte) {
	for _, b := range data {
		m.step(b)
	}
}

func (m *Machine) step(b byte) {
	switch m.st {
	case stateGround:
		m.ground(b)
	case stateEscape:
		m.escape(b)
	case stateEscapeSkip:
		m.st = stateGround
	case stateCSI:
		m.csi(b)
	case stateOSC:
		m.oscByte(b)
	case stateOSCEscape:
		// ESC \ is the string terminator; anything else abandons the
		// OSC and reprocesses the byte from the escape state.
		if b == '\\' {
			m.dispatchOSC()
			m.st = stateGround
		} else {
			m.st = stateEscape
			m.escape(b)
		}
	}
}

// ── ground ─────────────────────────────────────────────────────────

func (m *Machine) ground(b byte) {
	if b >= 0x20 && b != 0x7F {
		m.utf8Byte(b)
		return
	}
	m.utf8Reset()
	switch b {
	case 0x1B:
		m.enterEscape()
	case '\n', 0x0B, 0x0C:
		m.lineFeed()
	case '\r':
		m.grid.CursorX = 0
	case '\b':
		if m.grid.CursorX > 0 {
			m.grid.CursorX--
		}
	case '\t':
		m.tab()
	}
	// Remaining C0 bytes (BEL, NUL, ...) are dropped.
}

func (m *Machine) enterEscape() {
	m.st = stateEscape
	m.utf8Reset()
}

func (m *Machine) utf8Reset() {
	m.utf8Len, m.utf8Need = 0, 0
}

// utf8Byte accumulates one byte of a UTF-8 sequence and prints the
// rune once complete. Invalid sequences print U+FFFD and resynchronize
// on the offending byte.
func (m *Machine) utf8Byte(b byte) {
	if m.utf8Need == 0 {
		switch {
		case b < 0x80:
			m.print(rune(b))
			return
		case b&0xE0 == 0xC0:
			m.utf8Need = 2
		case b&0xF0 == 0xE0:
			m.utf8Need = 3
		case b&0xF8 == 0xF0:
			m.utf8Need = 4
		default:
			// stray continuation or invalid lead byte
			m.print('�')
			return
		}
		m.utf8[0] = b
		m.utf8Len = 1
		return
	}
	if b&0xC0 != 0x80 {
		// sequence broken mid-way: emit replacement, reprocess b fresh
		m.print('�')
		m.utf8Reset()
		m.utf8Byte(b)
		return
	}
	m.utf8[m.utf8Len] = b
	m.utf8Len++
	if m.utf8Len < m.utf8Need {
		return
	}
	r := decodeUTF8(m.utf8[:m.utf8Len])
	m.utf8Reset()
	m.print(r)
}

func decodeUTF8(p []byte) rune {
	var r rune
	switch len(p) {
	case 2:
		r = rune(p[0]&0x1F)<<6 | rune(p[1]&0x3F)
		if r < 0x80 {
			return '�'
		}
	case 3:
		r = rune(p[0]&0x0F)<<12 | rune(p[1]&0x3F)<<6 | rune(p[2]&0x3F)
		if r < 0x800 || (r >= 0xD800 && r <= 0xDFFF) {
			return '�'
		}
	case 4:
		r = rune(p[0]&0x07)<<18 | rune(p[1]&0x3F)<<12 | rune(p[2]&0x3F)<<6 | rune(p[3]&0x3F)
		if r < 0x10000 || r > 0x10FFFF {
			return '�'
		}
	default:
		return '�'
	}
	return r
}

// print writes one rune at the cursor, wrapping and scrolling as
// needed. Double-width glyphs occupy a lead cell plus a continuation
// cell and never straddle a row boundary.
func (m *Machine) print(r rune) {
	w := runewidth.RuneWidth(r)
	if w == 0 {
		// Combining marks are dropped; the grid stores one rune per cell.
		return
	}
	g := m.grid
	if g.CursorX+w > g.Cols() {
		g.CursorX = 0
		m.lineFeed()
	}
	fg, bg := m.p.fg, m.p.bg
	if m.p.attr&term.AttrInverse != 0 {
		fg, bg = bg, fg
	}
	c := term.Cell{Rune: uint32(r), FG: fg, BG: bg, Attr: m.p.attr &^ (term.AttrWide | term.AttrContinuation)}
	if w == 2 {
		c.Attr |= term.AttrWide
		g.Set(g.CursorX, g.CursorY, c)
		g.Set(g.CursorX+1, g.CursorY, term.Cell{FG: fg, BG: bg, Attr: term.AttrContinuation})
	} else {
		g.Set(g.CursorX, g.CursorY, c)
	}
	g.CursorX += w
	if g.CursorX > g.Cols() {
		g.CursorX = g.Cols()
	}
}

func (m *Machine) lineFeed() {
	g := m.grid
	if g.CursorY >= g.Rows()-1 {
		g.ScrollUp(1, m.blank())
		g.CursorY = g.Rows() - 1
	} else {
		g.CursorY++
	}
}

func (m *Machine) tab() {
	g := m.grid
	next := (g.CursorX/8 + 1) * 8
	if next > g.Cols()-1 {
		next = g.Cols() - 1
	}
	g.CursorX = next
}

// blank is the erase cell: current background, default foreground.
func (m *Machine) blank() term.Cell {
	bg := m.p.bg
	if m.p.attr&term.AttrInverse != 0 {
		bg = m.p.fg
	}
	return term.Blank(term.DefaultFG, bg)
}

// ── escape ─────────────────────────────────────────────────────────

func (m *Machine) escape(b byte) {
	m.st = stateGround
	switch b {
	case '[':
		m.st = stateCSI
		m.csiReset()
	case ']':
		m.st = stateOSC
		m.osc = m.osc[:0]
		m.oscBad = false
	case '(', ')', '*', '+':
		// charset designator, swallow the set byte
		m.st = stateEscapeSkip
	case '7':
		m.saved = savedCursor{x: m.grid.CursorX, y: m.grid.CursorY, p: m.p, set: true}
	case '8':
		if m.saved.set {
			m.grid.MoveCursor(m.saved.x, m.saved.y)
			m.p = m.saved.p
		}
	case 'D':
		m.lineFeed()
	case 'E':
		m.grid.CursorX = 0
		m.lineFeed()
	case 'M':
		// reverse index: cursor up, no scroll region support so clamp
		if m.grid.CursorY > 0 {
			m.grid.CursorY--
		}
	case 'c':
		m.reset()
	case 0x1B:
		m.st = stateEscape
	}
	// Unrecognized escapes fall back to ground, byte discarded.
}

// reset restores power-on state: cleared grid, home cursor, default pen.
func (m *Machine) reset() {
	m.p = defaultPen()
	m.saved = savedCursor{}
	m.grid.Fill(term.Blank(term.DefaultFG, term.DefaultBG))
	m.grid.MoveCursor(0, 0)
	m.grid.CursorVisible = true
}

// ── CSI ────────────────────────────────────────────────────────────

func (m *Machine) csiReset() {
	m.params = m.params[:0]
	m.acc, m.accSet = 0, false
	m.private = 0
	m.csiBad = false
	m.nparams = 0
}

func (m *Machine) csi(b byte) {
	switch {
	case b >= '0' && b <= '9':
		m.acc = m.acc*10 + int(b-'0')
		if m.acc > maxParam {
			m.acc = maxParam
		}
		m.accSet = true
	case b == ';':
		m.pushParam()
	case b == ':':
		// subparameters (SGR underline styles etc) are not modeled
		m.csiBad = true
	case b >= 0x3C && b <= 0x3F:
		if m.nparams == 0 && !m.accSet {
			m.private = b
		} else {
			m.csiBad = true
		}
	case b >= 0x20 && b <= 0x2F:
		// intermediates unsupported; swallow the sequence
		m.csiBad = true
	case b >= 0x40 && b <= 0x7E:
		m.pushParam()
		if !m.csiBad {
			m.dispatchCSI(b)
		}
		m.st = stateGround
	case b == 0x1B:
		m.st = stateEscape
	case b == 0x18 || b == 0x1A: // CAN, SUB
		m.st = stateGround
	default:
		// C0 control inside CSI: xterm executes these; we keep the
		// common ones so progress bars using \r inside sequences
		// interleave sanely.
		if b == '\r' {
			m.grid.CursorX = 0
		} else if b == '\n' {
			m.lineFeed()
		}
	}
}

func (m *Machine) pushParam() {
	if m.nparams >= maxParams {
		m.csiBad = true
		m.acc, m.accSet = 0, false
		return
	}
	if m.accSet {
		m.params = append(m.params, m.acc)
	} else {
		m.params = append(m.params, 0)
	}
	m.nparams++
	m.acc, m.accSet = 0, false
}

// param returns the i'th parameter, treating 0/missing as def.
func (m *Machine) param(i, def int) int {
	if i >= len(m.params) || m.params[i] == 0 {
		return def
	}
	return m.params[i]
}

func (m *Machine) dispatchCSI(final byte) {
	g := m.grid
	switch final {
	case 'A': // CUU
		g.MoveCursor(g.CursorX, g.CursorY-m.param(0, 1))
	case 'B': // CUD
		g.MoveCursor(g.CursorX, g.CursorY+m.param(0, 1))
	case 'C': // CUF
		g.MoveCursor(g.CursorX+m.param(0, 1), g.CursorY)
	case 'D': // CUB
		g.MoveCursor(g.CursorX-m.param(0, 1), g.CursorY)
	case 'G': // CHA
		g.MoveCursor(m.param(0, 1)-1, g.CursorY)
	case 'd': // VPA
		g.MoveCursor(g.CursorX, m.param(0, 1)-1)
	case 'H', 'f': // CUP / HVP, 1-based row;col
		g.MoveCursor(m.param(1, 1)-1, m.param(0, 1)-1)
	case 'J':
		switch m.param(0, 0) {
		case 0:
			g.ClearBelow(m.blank())
		case 1:
			g.ClearAbove(m.blank())
		case 2, 3:
			g.Fill(m.blank())
		}
	case 'K':
		switch m.param(0, 0) {
		case 0:
			g.ClearLineRight(m.blank())
		case 1:
			g.ClearLineLeft(m.blank())
		case 2:
			g.ClearLine(m.blank())
		}
	case 'm':
		m.sgr()
	case 'h':
		if m.private == '?' && m.param(0, 0) == 25 {
			g.CursorVisible = true
		}
	case 'l':
		if m.private == '?' && m.param(0, 0) == 25 {
			g.CursorVisible = false
		}
	case 's':
		m.saved = savedCursor{x: g.CursorX, y: g.CursorY, p: m.p, set: true}
	case 'u':
		if m.saved.set {
			g.MoveCursor(m.saved.x, m.saved.y)
			m.p = m.saved.p
		}
	}
	// Everything else is discarded after being fully consumed.
}

// sgr applies SGR parameters to the pen. Later parameters layer on top
// of earlier ones within the same sequence.
func (m *Machine) sgr() {
	if len(m.params) == 0 {
		m.p = defaultPen()
		return
	}
	for i := 0; i < len(m.params); i++ {
		n := m.params[i]
		switch {
		case n == 0:
			m.p = defaultPen()
		case n == 1:
			m.p.attr |= term.AttrBold
		case n == 2:
			m.p.attr |= term.AttrDim
		case n == 3:
			m.p.attr |= term.AttrItalic
		case n == 4:
			m.p.attr |= term.AttrUnderline
		case n == 7:
			m.p.attr |= term.AttrInverse
		case n == 9:
			m.p.attr |= term.AttrStrike
		case n == 22:
			m.p.attr &^= term.AttrBold | term.AttrDim
		case n == 23:
			m.p.attr &^= term.AttrItalic
		case n == 24:
			m.p.attr &^= term.AttrUnderline
		case n == 27:
			m.p.attr &^= term.AttrInverse
		case n == 29:
			m.p.attr &^= term.AttrStrike
		case n >= 30 && n <= 37:
			m.p.fg = term.Color256(uint8(n - 30))
		case n == 38:
			if c, skip, ok := m.extendedColor(i); ok {
				m.p.fg = c
				i += skip
			} else {
				return
			}
		case n == 39:
			m.p.fg = term.DefaultFG
		case n >= 40 && n <= 47:
			m.p.bg = term.Color256(uint8(n - 40))
		case n == 48:
			if c, skip, ok := m.extendedColor(i); ok {
				m.p.bg = c
				i += skip
			} else {
				return
			}
		case n == 49:
			m.p.bg = term.DefaultBG
		case n >= 90 && n <= 97:
			m.p.fg = term.Color256(uint8(n - 90 + 8))
		case n >= 100 && n <= 107:
			m.p.bg = term.Color256(uint8(n - 100 + 8))
		}
	}
}

// extendedColor parses the tail of SGR 38/48: "5;n" for indexed color
// or "2;r;g;b" for direct color, starting after params[i]. It returns
// the color, how many parameters were consumed, and whether the form
// was well formed. Malformed forms abandon the rest of the sequence.
func (m *Machine) extendedColor(i int) (color uint32, consumed int, ok bool) {
	rest := m.params[i+1:]
	if len(rest) >= 2 && rest[0] == 5 {
		n := rest[1]
		if n < 0 || n > 255 {
			return 0, 0, false
		}
		return term.Color256(uint8(n)), 2, true
	}
	if len(rest) >= 4 && rest[0] == 2 {
		r, g, b := rest[1], rest[2], rest[3]
		if r > 255 || g > 255 || b > 255 {
			return 0, 0, false
		}
		return term.PackRGB(uint8(r), uint8(g), uint8(b)), 4, true
	}
	return 0, 0, false
}

// ── OSC ────────────────────────────────────────────────────────────

func (m *Machine) oscByte(b byte) {
	switch b {
	case 0x07: // BEL terminator
		m.dispatchOSC()
		m.st = stateGround
	case 0x1B:
		m.st = stateOSCEscape
	default:
		if len(m.osc) >= maxOSC {
			m.oscBad = true
			return
		}
		m.osc = append(m.osc, b)
	}
}

func (m *Machine) dispatchOSC() {
	if m.oscBad {
		return
	}
	s := string(m.osc)
	// OSC 0;title and OSC 2;title set the window title; everything
	// else (clipboard, hyperlinks, color queries) is dropped.
	if len(s) >= 2 && (s[0] == '0' || s[0] == '2') && s[1] == ';' {
		m.title = s[2:]
	}
}

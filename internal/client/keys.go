package client

import (
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
)

// specialKeys maps tcell keys with fixed escape encodings.
var specialKeys = map[tcell.Key]string{
	tcell.KeyUp:     "\x1b[A",
	tcell.KeyDown:   "\x1b[B",
	tcell.KeyRight:  "\x1b[C",
	tcell.KeyLeft:   "\x1b[D",
	tcell.KeyHome:   "\x1b[H",
	tcell.KeyEnd:    "\x1b[F",
	tcell.KeyInsert: "\x1b[2~",
	tcell.KeyDelete: "\x1b[3~",
	tcell.KeyPgUp:   "\x1b[5~",
	tcell.KeyPgDn:   "\x1b[6~",
	tcell.KeyF1:     "\x1bOP",
	tcell.KeyF2:     "\x1bOQ",
	tcell.KeyF3:     "\x1bOR",
	tcell.KeyF4:     "\x1bOS",
	tcell.KeyF5:     "\x1b[15~",
	tcell.KeyF6:     "\x1b[17~",
	tcell.KeyF7:     "\x1b[18~",
	tcell.KeyF8:     "\x1b[19~",
	tcell.KeyF9:     "\x1b[20~",
	tcell.KeyF10:    "\x1b[21~",
	tcell.KeyF11:    "\x1b[23~",
	tcell.KeyF12:    "\x1b[24~",
}

// encodeKey translates a tcell key event into the byte sequence a
// terminal would send to the PTY. Returns nil for events with no wire
// form.
func encodeKey(ev *tcell.EventKey) []byte {
	if s, ok := specialKeys[ev.Key()]; ok {
		return []byte(s)
	}
	switch ev.Key() {
	case tcell.KeyRune:
		var buf [5]byte
		n := 0
		if ev.Modifiers()&tcell.ModAlt != 0 {
			buf[0] = 0x1B
			n = 1
		}
		n += utf8.EncodeRune(buf[n:], ev.Rune())
		return buf[:n]
	case tcell.KeyEnter:
		return []byte{'\r'}
	case tcell.KeyTab:
		return []byte{'\t'}
	case tcell.KeyBacktab:
		return []byte("\x1b[Z")
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return []byte{0x7F}
	case tcell.KeyEscape:
		return []byte{0x1B}
	}
	// Control characters arrive as their own key codes (Ctrl-A is 1).
	if k := ev.Key(); k < 0x20 {
		return []byte{byte(k)}
	}
	return nil
}

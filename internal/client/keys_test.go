package client

import (
	"bytes"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestEncodeKey(t *testing.T) {
	cases := []struct {
		name string
		ev   *tcell.EventKey
		want []byte
	}{
		{"rune", tcell.NewEventKey(tcell.KeyRune, 'a', tcell.ModNone), []byte("a")},
		{"utf8 rune", tcell.NewEventKey(tcell.KeyRune, 'é', tcell.ModNone), []byte("é")},
		{"alt rune", tcell.NewEventKey(tcell.KeyRune, 'f', tcell.ModAlt), []byte("\x1bf")},
		{"enter", tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone), []byte("\r")},
		{"tab", tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone), []byte("\t")},
		{"backtab", tcell.NewEventKey(tcell.KeyBacktab, 0, tcell.ModNone), []byte("\x1b[Z")},
		{"backspace", tcell.NewEventKey(tcell.KeyBackspace2, 0, tcell.ModNone), []byte{0x7F}},
		{"escape", tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone), []byte{0x1B}},
		{"up", tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone), []byte("\x1b[A")},
		{"down", tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone), []byte("\x1b[B")},
		{"right", tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone), []byte("\x1b[C")},
		{"left", tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone), []byte("\x1b[D")},
		{"pgup", tcell.NewEventKey(tcell.KeyPgUp, 0, tcell.ModNone), []byte("\x1b[5~")},
		{"delete", tcell.NewEventKey(tcell.KeyDelete, 0, tcell.ModNone), []byte("\x1b[3~")},
		{"f1", tcell.NewEventKey(tcell.KeyF1, 0, tcell.ModNone), []byte("\x1bOP")},
		{"f5", tcell.NewEventKey(tcell.KeyF5, 0, tcell.ModNone), []byte("\x1b[15~")},
		{"ctrl-c", tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl), []byte{0x03}},
		{"ctrl-d", tcell.NewEventKey(tcell.KeyCtrlD, 0, tcell.ModCtrl), []byte{0x04}},
	}
	for _, tc := range cases {
		if got := encodeKey(tc.ev); !bytes.Equal(got, tc.want) {
			t.Errorf("%s: expected % x, got % x", tc.name, tc.want, got)
		}
	}
}

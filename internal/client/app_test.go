package client

import (
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"pkt.systems/pslog"

	"github.com/driftterm/driftterm/internal/appconfig"
	"github.com/driftterm/driftterm/internal/protocol"
	"github.com/driftterm/driftterm/internal/shm"
	"github.com/driftterm/driftterm/internal/term"
)

// A resize ack can arrive after the frame tick already consumed the
// first frame at the new generation. Adopting the generation must
// repaint that frame; otherwise a quiet session stays at the
// pre-resize content until the next unrelated publish.
func TestResizeAckRepaintsConsumedFrame(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	defer screen.Fini()
	screen.SetSize(120, 40)

	seg, err := shm.Create(filepath.Join(t.TempDir(), "test.grid"))
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	defer seg.Close()
	pub := shm.NewPublisher(seg)

	g := term.NewGrid(100, 30)
	for i, r := range "resized" {
		g.Set(i, 0, term.Cell{Rune: uint32(r), FG: term.DefaultFG, BG: term.DefaultBG})
	}
	if gen := pub.BumpGeneration(); gen != 1 {
		t.Fatalf("expected generation 1, got %d", gen)
	}
	if err := pub.Publish(g); err != nil {
		t.Fatalf("publish: %v", err)
	}

	a := &App{
		cfg: appconfig.DefaultConfig(),
		log: pslog.NewWithOptions(io.Discard, pslog.Options{
			Mode:     pslog.ModeStructured,
			NoColor:  true,
			MinLevel: pslog.ErrorLevel,
		}),
		sessionID:     "s1",
		seg:           seg,
		rd:            shm.NewReader(seg),
		screen:        screen,
		lastHeartbeat: time.Now(),
	}

	// The tick consumes the new-generation frame while the acked
	// generation is still the old one, so nothing is painted yet.
	a.pollFrame()
	if r, _, _, _ := screen.GetContent(0, 0); r == 'r' {
		t.Fatalf("frame painted before the resize ack adopted its generation")
	}
	if a.snap.Generation != 1 {
		t.Fatalf("expected snapshot at generation 1, got %d", a.snap.Generation)
	}

	raw, err := json.Marshal(protocol.ResizedResponse{
		Type:       protocol.TypeResized,
		ID:         "s1",
		Generation: 1,
		Cols:       100,
		Rows:       30,
	})
	if err != nil {
		t.Fatalf("marshal ack: %v", err)
	}
	done, err := a.handleControlEvent(Event{Type: protocol.TypeResized, Raw: raw}, nil)
	if err != nil || done {
		t.Fatalf("handle resized: done=%v err=%v", done, err)
	}

	for i, want := range "resized" {
		if r, _, _, _ := screen.GetContent(i, 0); r != want {
			t.Fatalf("col %d: expected %q after ack, got %q", i, want, r)
		}
	}
}

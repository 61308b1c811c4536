package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"pkt.systems/pslog"

	"github.com/driftterm/driftterm/internal/appconfig"
	"github.com/driftterm/driftterm/internal/protocol"
	"github.com/driftterm/driftterm/internal/shm"
	"github.com/driftterm/driftterm/internal/term"
)

// detachKey leaves the session without killing it (Ctrl-\).
const detachKey = tcell.KeyCtrlBackslash

const frameInterval = 16 * time.Millisecond

// App is an attached terminal view: control channel on one side, grid
// segment and tcell screen on the other.
type App struct {
	cfg  appconfig.Config
	log  pslog.Logger
	ctrl *Conn

	sessionID string
	seg       *shm.Segment
	rd        *shm.Reader
	snap      shm.Snapshot
	gen       uint64

	screen        tcell.Screen
	lastHeartbeat time.Time
	statusLine    string
}

// NewApp connects to the daemon.
func NewApp(cfg appconfig.Config, log pslog.Logger) (*App, error) {
	ctrl, err := Dial(cfg.SocketPath())
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", cfg.SocketPath(), err)
	}
	return &App{cfg: cfg, log: log, ctrl: ctrl, lastHeartbeat: time.Now()}, nil
}

// Run attaches to sessionID, or creates a fresh session when it is
// empty, and drives the screen until the user detaches or the session
// ends.
func (a *App) Run(ctx context.Context, sessionID string) error {
	defer a.ctrl.Close()

	if sessionID == "" {
		if err := a.createSession(); err != nil {
			return err
		}
	} else {
		if err := a.attachSession(sessionID); err != nil {
			return err
		}
	}
	defer func() {
		if a.seg != nil {
			a.seg.Close()
		}
	}()

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	a.screen = screen
	defer screen.Fini()

	// Match the session to the real window before first paint.
	if cols, rows := screen.Size(); cols > 0 && rows > 0 {
		a.requestResize(cols, rows)
	}

	tcellEvents := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	go screen.ChannelEvents(tcellEvents, quit)
	defer close(quit)

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-a.ctrl.Events:
			if !ok {
				a.drawDisconnected("daemon connection lost")
				a.waitForKey(tcellEvents)
				return errors.New("daemon connection lost")
			}
			done, err := a.handleControlEvent(ev, tcellEvents)
			if err != nil {
				return err
			}
			if done {
				return nil
			}

		case ev := <-tcellEvents:
			if done := a.handleScreenEvent(ev); done {
				return nil
			}

		case <-ticker.C:
			a.pollFrame()
		}
	}
}

func (a *App) createSession() error {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	env["TERM"] = a.cfg.Session.Term
	cwd, _ := os.Getwd()
	if err := a.ctrl.Create(protocol.CreateRequest{
		Command: a.cfg.Session.Shell,
		Cwd:     cwd,
		Env:     env,
		Cols:    a.cfg.Session.Cols,
		Rows:    a.cfg.Session.Rows,
	}); err != nil {
		return err
	}
	for ev := range a.ctrl.Events {
		switch ev.Type {
		case protocol.TypeCreated:
			var created protocol.CreatedResponse
			if err := json.Unmarshal(ev.Raw, &created); err != nil {
				return err
			}
			a.sessionID = created.ID
			a.gen = created.Generation
			a.log.With("session", created.ID).With("pid", created.Pid).Info("session created")
			return a.openSegment(created.ShmPath)
		case protocol.TypeError:
			return controlError(ev.Raw)
		case protocol.TypeHeartbeat:
			a.lastHeartbeat = time.Now()
		}
	}
	return errors.New("daemon closed connection during create")
}

func (a *App) attachSession(id string) error {
	if err := a.ctrl.Attach(id); err != nil {
		return err
	}
	for ev := range a.ctrl.Events {
		switch ev.Type {
		case protocol.TypeAttached:
			var attached protocol.AttachedResponse
			if err := json.Unmarshal(ev.Raw, &attached); err != nil {
				return err
			}
			a.sessionID = attached.ID
			a.gen = attached.Generation
			a.log.With("session", attached.ID).Info("attached")
			return a.openSegment(attached.ShmPath)
		case protocol.TypeError:
			return controlError(ev.Raw)
		case protocol.TypeHeartbeat:
			a.lastHeartbeat = time.Now()
		}
	}
	return errors.New("daemon closed connection during attach")
}

func (a *App) openSegment(path string) error {
	seg, err := shm.Open(path)
	if err != nil {
		return err
	}
	a.seg = seg
	a.rd = shm.NewReader(seg)
	return nil
}

// handleControlEvent processes one daemon message. It returns done
// when the session is over and the app should exit cleanly.
func (a *App) handleControlEvent(ev Event, tcellEvents <-chan tcell.Event) (bool, error) {
	switch ev.Type {
	case protocol.TypeHeartbeat:
		a.lastHeartbeat = time.Now()

	case protocol.TypeResized:
		var resized protocol.ResizedResponse
		if err := json.Unmarshal(ev.Raw, &resized); err != nil {
			return false, err
		}
		if resized.ID == a.sessionID {
			// Frames stamped with older generations are stale layouts;
			// adopting the acked generation gates what we draw.
			a.gen = resized.Generation
			// The ticker may already have consumed the first frame at
			// the new generation before this ack arrived; repaint now
			// that the gate admits it.
			a.draw()
		}

	case protocol.TypeExit:
		var exit protocol.ExitEvent
		if err := json.Unmarshal(ev.Raw, &exit); err != nil {
			return false, err
		}
		if exit.ID == a.sessionID {
			a.pollFrame()
			a.drawDisconnected(fmt.Sprintf("session exited (code %d) - press any key", exit.ExitCode))
			a.waitForKey(tcellEvents)
			return true, nil
		}

	case protocol.TypeError:
		a.statusLine = controlError(ev.Raw).Error()
	}
	return false, nil
}

func (a *App) handleScreenEvent(ev tcell.Event) bool {
	switch tev := ev.(type) {
	case *tcell.EventKey:
		if tev.Key() == detachKey {
			a.ctrl.Detach(a.sessionID)
			return true
		}
		if data := encodeKey(tev); data != nil {
			if err := a.ctrl.Input(a.sessionID, data); err != nil {
				a.statusLine = "input failed: " + err.Error()
			}
		}
	case *tcell.EventResize:
		cols, rows := tev.Size()
		a.requestResize(cols, rows)
	}
	return false
}

// requestResize asks the daemon for new dimensions, clamped to the
// segment capacity so an oversized window degrades instead of erroring.
func (a *App) requestResize(cols, rows int) {
	if cols > shm.MaxCols {
		cols = shm.MaxCols
	}
	if rows > shm.MaxRows {
		rows = shm.MaxRows
	}
	if cols < 1 || rows < 1 {
		return
	}
	if err := a.ctrl.Resize(a.sessionID, cols, rows); err != nil {
		a.statusLine = "resize failed: " + err.Error()
	}
}

// pollFrame copies the latest stable frame and redraws. A stalled
// writer is only reported as dead when heartbeats are also gone.
func (a *App) pollFrame() {
	if a.screen == nil || a.rd == nil {
		return
	}
	if !a.rd.Changed() && a.snap.Sequence != 0 {
		return
	}
	if err := a.rd.Read(&a.snap, 5*time.Millisecond); err != nil {
		if errors.Is(err, shm.ErrWriterStalled) {
			heartbeatAge := time.Since(a.lastHeartbeat)
			limit := 3 * time.Duration(a.cfg.Daemon.HeartbeatIntervalMS) * time.Millisecond
			if heartbeatAge > limit {
				a.drawDisconnected("daemon not responding")
			}
			// otherwise the writer is just busy; try again next tick
		}
		return
	}
	a.rd.AckDirty()
	a.draw()
}

// draw paints the current snapshot. Frames from a generation other
// than the acked one are skipped; the next publish at the right
// generation repaints everything.
func (a *App) draw() {
	if a.snap.Generation != a.gen {
		return
	}
	s := a.screen
	s.Clear()
	width, height := s.Size()
	for row := 0; row < a.snap.Rows && row < height; row++ {
		for col := 0; col < a.snap.Cols && col < width; col++ {
			c := a.snap.Cell(col, row)
			if c.Attr&term.AttrContinuation != 0 {
				continue
			}
			r := rune(c.Rune)
			if r == 0 {
				r = ' '
			}
			s.SetContent(col, row, r, nil, cellStyle(c))
		}
	}
	if a.statusLine != "" && height > 0 {
		style := tcell.StyleDefault.Reverse(true)
		for i, r := range a.statusLine {
			if i >= width {
				break
			}
			s.SetContent(i, height-1, r, nil, style)
		}
	}
	if a.snap.CursorVisible && !a.snap.ErrorMode {
		s.ShowCursor(a.snap.CursorX, a.snap.CursorY)
	} else {
		s.HideCursor()
	}
	s.Show()
}

// drawDisconnected overlays a status banner on whatever was last drawn.
func (a *App) drawDisconnected(msg string) {
	if a.screen == nil {
		return
	}
	width, _ := a.screen.Size()
	style := tcell.StyleDefault.Reverse(true).Bold(true)
	for i := 0; i < width; i++ {
		r := ' '
		if i < len(msg) {
			r = rune(msg[i])
		}
		a.screen.SetContent(i, 0, r, nil, style)
	}
	a.screen.HideCursor()
	a.screen.Show()
}

// waitForKey blocks until a key press or a short timeout, so exit
// banners are readable before the screen is torn down.
func (a *App) waitForKey(tcellEvents <-chan tcell.Event) {
	timeout := time.After(30 * time.Second)
	for {
		select {
		case ev := <-tcellEvents:
			if _, ok := ev.(*tcell.EventKey); ok {
				return
			}
		case <-timeout:
			return
		}
	}
}

func controlError(raw []byte) error {
	var resp protocol.ErrorResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return err
	}
	return errors.New(resp.Message)
}

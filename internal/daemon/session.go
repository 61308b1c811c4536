package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"pkt.systems/pslog"

	"github.com/driftterm/driftterm/internal/appconfig"
	"github.com/driftterm/driftterm/internal/protocol"
	"github.com/driftterm/driftterm/internal/shm"
	"github.com/driftterm/driftterm/internal/term"
	"github.com/driftterm/driftterm/internal/vte"
)

// Session is one PTY child plus its terminal state. The reader
// goroutine is the only writer to grid, machine, and pub; Resize and
// the banner path take mu to serialize with it.
type Session struct {
	ID  string
	Cmd *exec.Cmd
	Pty *os.File
	Pid int

	mu      sync.Mutex
	grid    *term.Grid
	machine *vte.Machine
	pub     *shm.Publisher
	seg     *shm.Segment
	ring    *ScrollbackRing
	cols    int
	rows    int
	gen     uint64
	closed  bool // segment torn down, no more publishes

	alive    bool
	exitCode int
	exitedAt time.Time // zero if still alive
}

// Manager owns all sessions and dispatches exit events to the server.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      appconfig.Config
	shmDir   string
	log      pslog.Logger
	onExit   func(id string, exitCode int, pid int)
}

func NewManager(cfg appconfig.Config, log pslog.Logger, onExit func(string, int, int)) *Manager {
	shmDir := cfg.ShmDir
	if shmDir == "" {
		shmDir = shm.DefaultDir()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		shmDir:   shmDir,
		log:      log,
		onExit:   onExit,
	}
}

func validDims(cols, rows int) error {
	if cols < 1 || rows < 1 || cols > shm.MaxCols || rows > shm.MaxRows {
		return fmt.Errorf("dimensions %dx%d out of range 1x1..%dx%d", cols, rows, shm.MaxCols, shm.MaxRows)
	}
	return nil
}

// Create spawns a new session. Zero dimensions and an empty command
// take the configured defaults; the env map is the child's complete
// environment with TERM filled in when absent.
func (m *Manager) Create(req protocol.CreateRequest) (*Session, error) {
	m.mu.RLock()
	count := len(m.sessions)
	m.mu.RUnlock()
	if count >= m.cfg.Daemon.MaxSessions {
		return nil, fmt.Errorf("session limit reached (%d)", m.cfg.Daemon.MaxSessions)
	}

	cols, rows := req.Cols, req.Rows
	if cols == 0 {
		cols = m.cfg.Session.Cols
	}
	if rows == 0 {
		rows = m.cfg.Session.Rows
	}
	if err := validDims(cols, rows); err != nil {
		return nil, err
	}

	command := req.Command
	if command == "" {
		command = m.cfg.Session.Shell
	}
	cmd := exec.Command(command, req.Args...)
	cmd.Dir = req.Cwd

	env := make([]string, 0, len(req.Env)+1)
	hasTerm := false
	for k, v := range req.Env {
		if k == "TERM" {
			hasTerm = true
		}
		env = append(env, k+"="+v)
	}
	if !hasTerm {
		env = append(env, "TERM="+m.cfg.Session.Term)
	}
	cmd.Env = env

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, fmt.Errorf("pty start: %w", err)
	}

	id := newSessionID()
	seg, err := shm.Create(shm.SegmentPath(m.shmDir, id))
	if err != nil {
		ptmx.Close()
		cmd.Process.Kill()
		return nil, err
	}

	grid := term.NewGrid(cols, rows)
	sess := &Session{
		ID:      id,
		Cmd:     cmd,
		Pty:     ptmx,
		Pid:     cmd.Process.Pid,
		grid:    grid,
		machine: vte.New(grid),
		pub:     shm.NewPublisher(seg),
		seg:     seg,
		ring:    NewScrollbackRing(m.cfg.Daemon.ScrollbackBytes),
		cols:    cols,
		rows:    rows,
		alive:   true,
	}
	// First frame so attachers see a blank grid, not zeroed memory.
	if err := sess.pub.Publish(grid); err != nil {
		seg.Close()
		seg.Unlink()
		ptmx.Close()
		cmd.Process.Kill()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	go m.readLoop(sess)
	return sess, nil
}

// readLoop pumps PTY output through the escape machine and publishes
// a frame per batch. An incomplete UTF-8 tail is held back so the
// scrollback ring never stores a torn character.
func (m *Manager) readLoop(sess *Session) {
	defer func() {
		if r := recover(); r != nil {
			m.log.With("session", sess.ID).With("panic", fmt.Sprint(r)).Error("session reader panicked")
			m.failSession(sess, fmt.Sprintf("terminal state error: %v", r))
		}
	}()

	buf := make([]byte, 32*1024)
	var pending []byte
	for {
		n, err := sess.Pty.Read(buf)
		if n > 0 {
			var chunk []byte
			if len(pending) > 0 {
				chunk = make([]byte, len(pending)+n)
				copy(chunk, pending)
				copy(chunk[len(pending):], buf[:n])
				pending = nil
			} else {
				chunk = buf[:n]
			}
			tail := incompleteUTF8Tail(chunk)
			if tail > 0 {
				pending = make([]byte, tail)
				copy(pending, chunk[len(chunk)-tail:])
				chunk = chunk[:len(chunk)-tail]
			}
			if len(chunk) > 0 {
				sess.ring.Write(chunk)
				if err := sess.feed(chunk); err != nil {
					m.log.With("session", sess.ID).With("err", err).Error("publish failed")
				}
			}
		}
		if err != nil {
			if len(pending) > 0 {
				sess.ring.Write(pending)
				sess.feed(pending)
			}
			break
		}
	}

	state, _ := sess.Cmd.Process.Wait()
	exitCode := 0
	if state != nil {
		exitCode = state.ExitCode()
	}
	sess.mu.Lock()
	sess.alive = false
	sess.exitCode = exitCode
	sess.exitedAt = time.Now()
	sess.mu.Unlock()
	m.onExit(sess.ID, exitCode, sess.Pid)
}

// feed runs one output batch through the machine and publishes the
// resulting frame under the session lock.
func (s *Session) feed(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.machine.Feed(chunk)
	return s.pub.Publish(s.grid)
}

// failSession switches the session's segment into error mode with a
// banner explaining what died.
func (m *Manager) failSession(sess *Session, msg string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return
	}
	writeBanner(sess.grid, "driftd: "+msg)
	sess.pub.SetErrorMode(true)
	if err := sess.pub.Publish(sess.grid); err != nil {
		m.log.With("session", sess.ID).With("err", err).Error("banner publish failed")
	}
}

// Input writes keyboard bytes to a session's PTY.
func (m *Manager) Input(id string, data string) error {
	sess, err := m.get(id)
	if err != nil {
		return err
	}
	_, err = sess.Pty.Write([]byte(data))
	return err
}

// Resize applies new dimensions to the PTY and grid together and
// returns the generation stamped on all frames at the new size. The
// caller acks the client with it so stale-generation snapshots can be
// ignored during the transition.
func (m *Manager) Resize(id string, cols, rows int) (uint64, error) {
	if err := validDims(cols, rows); err != nil {
		return 0, err
	}
	sess, err := m.get(id)
	if err != nil {
		return 0, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return 0, fmt.Errorf("session closed: %s", id)
	}
	if err := pty.Setsize(sess.Pty, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return 0, fmt.Errorf("pty resize: %w", err)
	}
	sess.grid.Resize(cols, rows, term.Blank(term.DefaultFG, term.DefaultBG))
	sess.cols, sess.rows = cols, rows
	sess.gen = sess.pub.BumpGeneration()
	if err := sess.pub.Publish(sess.grid); err != nil {
		return 0, err
	}
	return sess.gen, nil
}

// Attach returns the session's segment path, current generation and
// dimensions, plus the scrollback contents for replay.
func (m *Manager) Attach(id string) (protocol.AttachedResponse, error) {
	sess, err := m.get(id)
	if err != nil {
		return protocol.AttachedResponse{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return protocol.AttachedResponse{
		Type:       protocol.TypeAttached,
		ID:         sess.ID,
		ShmPath:    sess.seg.Path(),
		Generation: sess.gen,
		Cols:       sess.cols,
		Rows:       sess.rows,
		Scrollback: string(sess.ring.Contents()),
	}, nil
}

// Destroy kills a session and tears down its segment. The file is
// unlinked immediately; clients that already mapped it keep a valid
// mapping until they close.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	sess.mu.Lock()
	if sess.alive {
		sess.Cmd.Process.Signal(syscall.SIGHUP)
		sess.Pty.Close()
	}
	sess.closed = true
	sess.seg.Unlink()
	sess.seg.Close()
	sess.mu.Unlock()
}

// DestroyAll tears down every session. Used during daemon shutdown.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Destroy(id)
	}
}

// List returns info about all known sessions, alive and recently dead.
func (m *Manager) List() []protocol.SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]protocol.SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		s.mu.Lock()
		out = append(out, protocol.SessionInfo{
			ID:       s.ID,
			Pid:      s.Pid,
			Cols:     s.cols,
			Rows:     s.rows,
			Alive:    s.alive,
			ExitCode: s.exitCode,
			ShmPath:  s.seg.Path(),
			Title:    s.machine.Title(),
		})
		s.mu.Unlock()
	}
	return out
}

// SweepDead removes sessions that exited more than maxAge ago,
// unlinking their segments. Dead sessions are kept around for a grace
// period so a client can still list them and read the exit code.
func (m *Manager) SweepDead(maxAge time.Duration) int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	swept := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		dead := !s.alive && !s.exitedAt.IsZero() && now.Sub(s.exitedAt) > maxAge
		if dead {
			s.closed = true
			s.seg.Unlink()
			s.seg.Close()
		}
		s.mu.Unlock()
		if dead {
			delete(m.sessions, id)
			swept++
		}
	}
	return swept
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, nil
}

// Info describes a freshly created session for the create ack.
func (s *Session) Info() (shmPath string, gen uint64, cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seg.Path(), s.gen, s.cols, s.rows
}

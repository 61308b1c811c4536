package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/driftterm/driftterm/internal/appconfig"
	"github.com/driftterm/driftterm/internal/protocol"
)

// client is one control-channel connection. Requests on a connection
// are handled strictly in arrival order; responses and events are
// serialized through the encoder mutex. The attachment set is read by
// broadcasting goroutines while the connection goroutine mutates it,
// so it has its own lock.
type client struct {
	conn net.Conn

	mu  sync.Mutex // guards enc
	enc *json.Encoder

	attachMu sync.Mutex
	attached map[string]bool
}

// send writes a JSON message to the client. Thread-safe. Writes time
// out so a wedged client errors out instead of stalling broadcasts;
// the error surfaces as a disconnect in the read loop, not here.
func (c *client) send(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	c.enc.Encode(msg)
}

func (c *client) attach(id string) {
	c.attachMu.Lock()
	c.attached[id] = true
	c.attachMu.Unlock()
}

func (c *client) detach(id string) {
	c.attachMu.Lock()
	delete(c.attached, id)
	c.attachMu.Unlock()
}

func (c *client) isAttached(id string) bool {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	return c.attached[id]
}

// Server accepts control connections on the unix socket and routes
// requests to the session manager.
type Server struct {
	cfg appconfig.Config
	log pslog.Logger
	mgr *Manager

	clientsMu sync.Mutex
	clients   map[*client]bool
}

func NewServer(cfg appconfig.Config, log pslog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log,
		clients: make(map[*client]bool),
	}
	s.mgr = NewManager(cfg, log, func(id string, exitCode, pid int) {
		log.With("session", id).With("pid", pid).With("code", exitCode).Info("session exited")
		s.broadcastToAttached(id, protocol.ExitEvent{
			Type:     protocol.TypeExit,
			ID:       id,
			ExitCode: exitCode,
			Pid:      pid,
		})
	})
	return s
}

// Manager exposes the session manager, mainly for tests.
func (s *Server) Manager() *Manager { return s.mgr }

// snapshotClients copies the client set so senders never hold
// clientsMu across a socket write.
func (s *Server) snapshotClients() []*client {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	out := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

// broadcastToAttached sends a message to all clients attached to a session.
func (s *Server) broadcastToAttached(sessionID string, msg any) {
	for _, c := range s.snapshotClients() {
		if c.isAttached(sessionID) {
			c.send(msg)
		}
	}
}

// broadcastAll sends a message to every connected client.
func (s *Server) broadcastAll(msg any) {
	for _, c := range s.snapshotClients() {
		c.send(msg)
	}
}

// Run listens on the control socket and serves until ctx is canceled.
// On return all sessions are destroyed and the socket removed.
func (s *Server) Run(ctx context.Context) error {
	os.MkdirAll(s.cfg.StateDir, 0755)
	os.Remove(s.cfg.SocketPath())

	ln, err := net.Listen("unix", s.cfg.SocketPath())
	if err != nil {
		return err
	}
	os.Chmod(s.cfg.SocketPath(), 0600)
	s.log.With("socket", s.cfg.SocketPath()).Info("listening")

	go s.heartbeatLoop(ctx)
	go s.sweepLoop(ctx)
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			break // listener closed (shutdown)
		}
		go s.handleClient(conn)
	}

	s.mgr.DestroyAll()
	os.Remove(s.cfg.SocketPath())
	s.log.Info("stopped")
	return nil
}

// heartbeatLoop broadcasts liveness so clients polling a quiet or
// stalled segment can tell a slow daemon from a dead one.
func (s *Server) heartbeatLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Daemon.HeartbeatIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.broadcastAll(protocol.HeartbeatEvent{
				Type: protocol.TypeHeartbeat,
				Time: t.UnixMilli(),
			})
		}
	}
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.Daemon.SweepIntervalSec) * time.Second)
	defer ticker.Stop()
	maxAge := time.Duration(s.cfg.Daemon.SweepMaxAgeMin) * time.Minute
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.mgr.SweepDead(maxAge); n > 0 {
				s.log.With("count", n).Info("swept dead sessions")
			}
		}
	}
}

func (s *Server) handleClient(conn net.Conn) {
	c := &client{
		conn:     conn,
		attached: make(map[string]bool),
		enc:      json.NewEncoder(conn),
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	// Lines up to 2MB: env maps on create can be large.
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.dispatch(c, line)
	}
}

// dispatch handles one request line. Requests on the same connection
// are processed sequentially, so a resize queued behind input is
// applied only after that input reached the PTY.
func (s *Server) dispatch(c *client, line []byte) {
	typ, err := protocol.Peek(line)
	if err != nil {
		c.send(protocol.ErrorResponse{Type: protocol.TypeError, Message: "malformed JSON"})
		return
	}

	switch typ {
	case protocol.TypeCreate:
		var req protocol.CreateRequest
		if err := json.Unmarshal(line, &req); err != nil {
			c.send(protocol.ErrorResponse{Type: protocol.TypeError, Message: err.Error()})
			return
		}
		sess, err := s.mgr.Create(req)
		if err != nil {
			c.send(protocol.ErrorResponse{Type: protocol.TypeError, Message: err.Error()})
			return
		}
		shmPath, gen, cols, rows := sess.Info()
		s.log.With("session", sess.ID).With("pid", sess.Pid).
			With("cols", cols).With("rows", rows).Info("session created")
		// Auto-attach the creator.
		c.attach(sess.ID)
		c.send(protocol.CreatedResponse{
			Type:       protocol.TypeCreated,
			ID:         sess.ID,
			Pid:        sess.Pid,
			ShmPath:    shmPath,
			Generation: gen,
			Cols:       cols,
			Rows:       rows,
		})

	case protocol.TypeInput:
		var req protocol.InputRequest
		if err := json.Unmarshal(line, &req); err != nil {
			c.send(protocol.ErrorResponse{Type: protocol.TypeError, Message: err.Error()})
			return
		}
		if err := s.mgr.Input(req.ID, req.Data); err != nil {
			c.send(protocol.ErrorResponse{Type: protocol.TypeError, Message: err.Error(), ID: req.ID})
		}

	case protocol.TypeResize:
		var req protocol.ResizeRequest
		if err := json.Unmarshal(line, &req); err != nil {
			c.send(protocol.ErrorResponse{Type: protocol.TypeError, Message: err.Error()})
			return
		}
		gen, err := s.mgr.Resize(req.ID, req.Cols, req.Rows)
		if err != nil {
			c.send(protocol.ErrorResponse{Type: protocol.TypeError, Message: err.Error(), ID: req.ID})
			return
		}
		s.broadcastToAttached(req.ID, protocol.ResizedResponse{
			Type:       protocol.TypeResized,
			ID:         req.ID,
			Generation: gen,
			Cols:       req.Cols,
			Rows:       req.Rows,
		})

	case protocol.TypeAttach:
		var req protocol.AttachRequest
		if err := json.Unmarshal(line, &req); err != nil {
			c.send(protocol.ErrorResponse{Type: protocol.TypeError, Message: err.Error()})
			return
		}
		resp, err := s.mgr.Attach(req.ID)
		if err != nil {
			c.send(protocol.ErrorResponse{Type: protocol.TypeError, Message: err.Error(), ID: req.ID})
			return
		}
		c.attach(req.ID)
		c.send(resp)

	case protocol.TypeDetach:
		var req protocol.DetachRequest
		if err := json.Unmarshal(line, &req); err != nil {
			c.send(protocol.ErrorResponse{Type: protocol.TypeError, Message: err.Error()})
			return
		}
		c.detach(req.ID)

	case protocol.TypeDestroy:
		var req protocol.DestroyRequest
		if err := json.Unmarshal(line, &req); err != nil {
			c.send(protocol.ErrorResponse{Type: protocol.TypeError, Message: err.Error()})
			return
		}
		s.log.With("session", req.ID).Info("session destroyed")
		s.mgr.Destroy(req.ID)

	case protocol.TypeList:
		c.send(protocol.ListResponse{Type: protocol.TypeListed, Sessions: s.mgr.List()})

	default:
		c.send(protocol.ErrorResponse{Type: protocol.TypeError, Message: "unknown type: " + typ})
	}
}

// Package client renders daemon sessions in the calling terminal. It
// speaks the control protocol over the daemon socket, maps the grid
// segment, and draws snapshots with tcell.
package client

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"

	"github.com/driftterm/driftterm/internal/protocol"
)

// Event is one decoded control-channel message: the type tag plus the
// raw line for the caller to unmarshal into the concrete struct.
type Event struct {
	Type string
	Raw  []byte
}

// Conn is a control-channel connection. Sends are serialized; received
// messages arrive on Events in order, and the channel closes when the
// daemon goes away.
type Conn struct {
	conn   net.Conn
	mu     sync.Mutex
	enc    *json.Encoder
	Events chan Event
}

// Dial connects to the daemon's control socket and starts the receive
// loop.
func Dial(socketPath string) (*Conn, error) {
	nc, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		conn:   nc,
		enc:    json.NewEncoder(nc),
		Events: make(chan Event, 64),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.Events)
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		typ, err := protocol.Peek(line)
		if err != nil {
			continue
		}
		c.Events <- Event{Type: typ, Raw: append([]byte(nil), line...)}
	}
}

// Close tears down the connection; the Events channel closes shortly
// after.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(msg)
}

func (c *Conn) Create(req protocol.CreateRequest) error {
	req.Type = protocol.TypeCreate
	return c.send(req)
}

func (c *Conn) Attach(id string) error {
	return c.send(protocol.AttachRequest{Type: protocol.TypeAttach, ID: id})
}

func (c *Conn) Detach(id string) error {
	return c.send(protocol.DetachRequest{Type: protocol.TypeDetach, ID: id})
}

func (c *Conn) Input(id string, data []byte) error {
	return c.send(protocol.InputRequest{Type: protocol.TypeInput, ID: id, Data: string(data)})
}

func (c *Conn) Resize(id string, cols, rows int) error {
	return c.send(protocol.ResizeRequest{Type: protocol.TypeResize, ID: id, Cols: cols, Rows: rows})
}

func (c *Conn) Destroy(id string) error {
	return c.send(protocol.DestroyRequest{Type: protocol.TypeDestroy, ID: id})
}

func (c *Conn) List() error {
	return c.send(protocol.ListRequest{Type: protocol.TypeList})
}

// Package protocol defines the control-channel messages exchanged over
// the daemon's unix socket. The wire format is JSON lines: one message
// per newline-terminated line, dispatched on the "type" field. The
// socket is a stream, so ordering per connection is guaranteed; grid
// content never travels here, only lifecycle, input, and liveness.
package protocol

import "encoding/json"

// Message type tags, client → daemon.
const (
	TypeCreate  = "create"
	TypeAttach  = "attach"
	TypeDetach  = "detach"
	TypeInput   = "input"
	TypeResize  = "resize"
	TypeDestroy = "destroy"
	TypeList    = "list"
)

// Message type tags, daemon → client.
const (
	TypeCreated   = "created"
	TypeAttached  = "attached"
	TypeResized   = "resized"
	TypeListed    = "listed"
	TypeExit      = "exit"
	TypeError     = "error"
	TypeHeartbeat = "heartbeat"
)

// Peek extracts the type tag from a raw message line for dispatch.
func Peek(line []byte) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

// --- Client → Daemon requests ---

// CreateRequest asks the daemon to spawn a new session. Env must be
// the full environment for the child (not inherited from the daemon),
// including TERM. Zero Cols/Rows take the daemon's configured default.
type CreateRequest struct {
	Type    string            `json:"type"`
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Cwd     string            `json:"cwd"`
	Env     map[string]string `json:"env"`
	Cols    int               `json:"cols"`
	Rows    int               `json:"rows"`
}

// AttachRequest subscribes the client to a session's events. The
// response carries the segment path and recent raw output for replay.
type AttachRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// DetachRequest unsubscribes the client from a session's events.
type DetachRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// InputRequest sends keyboard bytes to a session's PTY.
type InputRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Data string `json:"data"`
}

// ResizeRequest changes a session's dimensions. The daemon resizes the
// PTY and grid together and acks with the new generation; the client
// must not trust snapshots at older generations for layout.
type ResizeRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// DestroyRequest kills a session.
type DestroyRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ListRequest asks for all sessions, alive and recently dead.
type ListRequest struct {
	Type string `json:"type"`
}

// --- Daemon → Client responses and events ---

// CreatedResponse confirms a session was created. The creator is
// auto-attached. ShmPath is the grid segment for the client to map.
type CreatedResponse struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Pid        int    `json:"pid"`
	ShmPath    string `json:"shmPath"`
	Generation uint64 `json:"generation"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
}

// AttachedResponse confirms attachment. Scrollback is the raw output
// ring contents for terminals that want history above the live grid.
type AttachedResponse struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	ShmPath    string `json:"shmPath"`
	Generation uint64 `json:"generation"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
	Scrollback string `json:"scrollback"`
}

// ResizedResponse acks a resize with the generation the daemon will
// stamp on all frames at the new size.
type ResizedResponse struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Generation uint64 `json:"generation"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
}

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// ExitEvent reports that a session's child process exited.
type ExitEvent struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	ExitCode int    `json:"exitCode"`
	Pid      int    `json:"pid"`
}

// HeartbeatEvent is broadcast to every connected client on an
// interval. Readers stuck on a stalled segment use its absence to
// decide the daemon is dead rather than slow.
type HeartbeatEvent struct {
	Type string `json:"type"`
	Time int64  `json:"time"` // unix milliseconds
}

// ListResponse returns all known sessions.
type ListResponse struct {
	Type     string        `json:"type"`
	Sessions []SessionInfo `json:"sessions"`
}

// SessionInfo describes one session.
type SessionInfo struct {
	ID       string `json:"id"`
	Pid      int    `json:"pid"`
	Cols     int    `json:"cols"`
	Rows     int    `json:"rows"`
	Alive    bool   `json:"alive"`
	ExitCode int    `json:"exitCode"`
	ShmPath  string `json:"shmPath"`
	Title    string `json:"title,omitempty"`
}

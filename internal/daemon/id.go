package daemon

import (
	"crypto/rand"
	"encoding/hex"
)

// newSessionID returns a random 16-hex-char session identifier.
func newSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("daemon: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// Package session holds the server's record of client connections.
//
// A Session is created when a client finishes registering and is kept
// after the client leaves, marked with its disconnect time, so the
// Registry doubles as the session history for the process lifetime.
// Sessions never hold the network connection; the handler goroutine
// owns that until close.
package session

import (
	"time"

	"reposerve/internal/identity"
)

// TimeLayout is used for timestamps in status reports.
const TimeLayout = "2006-01-02 15:04:05.000000"

// Session is one client connection, live or historical.
type Session struct {
	ID             identity.ID
	Name           string    // display name declared by the client
	Addr           string    // peer host:port captured at accept time
	ConnectedAt    time.Time // set at registration
	DisconnectedAt time.Time // zero until the handler exits
}

// Connected reports whether the session's handler is still running.
func (s Session) Connected() bool { return s.DisconnectedAt.IsZero() }

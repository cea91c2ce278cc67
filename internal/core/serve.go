package core

import (
	"context"
	"net"
	"time"

	"reposerve/internal/admin"
	"reposerve/internal/dispatch"
	"reposerve/internal/errors"
	"reposerve/internal/identity"
	"reposerve/internal/metrics"
	"reposerve/internal/session"
	"reposerve/util"
)

// acceptRetryDelay is the pause after a temporary accept failure.
const acceptRetryDelay = 50 * time.Millisecond

// ServeMode accepts connections and runs one dispatcher goroutine per
// admitted connection.  At most MaxClients connections are admitted at
// once; the rest are told the server is full and closed, without being
// given an identity.
type ServeMode struct {
	Address    string       // "host:port"
	Listener   net.Listener // optional; overrides Address
	MaxClients int

	Allocator  *identity.Allocator
	Registry   *session.Registry
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Collector // may be nil
	Admin      *admin.Server      // optional
	Logger     *util.Logger

	// WriteTimeout bounds the server-full write to a rejected peer.
	WriteTimeout time.Duration
}

// Run serves until ctx is cancelled.  Cancellation closes the listener;
// sessions already running are not waited for.
func (m *ServeMode) Run(ctx context.Context) error {
	ln := m.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", m.Address)
		if err != nil {
			return errors.Wrap("listen", m.Address, err)
		}
	}
	defer ln.Close()
	if m.Dispatcher.Repo != nil {
		defer m.Dispatcher.Repo.Close() //nolint:errcheck
	}

	m.Logger.Info("listening on %s (max %d clients, repository %s)",
		ln.Addr(), m.MaxClients, m.repoRoot())

	// Shut the listener down when the context expires.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	if m.Admin != nil {
		go func() {
			if err := m.Admin.Run(ctx); err != nil {
				m.Logger.Error("admin: %v", err)
			}
		}()
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				m.Logger.Info("shutting down listener")
				return nil
			default:
			}
			if errors.IsTemporary(err) {
				m.Logger.Warn("accept: %v; retrying", err)
				time.Sleep(acceptRetryDelay)
				continue
			}
			return errors.Wrap("accept", ln.Addr().String(), err)
		}

		if !m.Registry.TryAdmit(m.MaxClients) {
			m.Metrics.Rejected()
			go m.reject(conn)
			continue
		}

		id := m.Allocator.Next()
		m.Logger.Verbose("connection %s from %s", id, conn.RemoteAddr())
		go m.serveConn(conn, id)
	}
}

// ── Per-connection ───────────────────────────────────────────────────

func (m *ServeMode) serveConn(conn net.Conn, id identity.ID) {
	defer m.Registry.Release()
	if err := m.Dispatcher.Serve(conn, id); err != nil {
		m.Logger.Debug("session %s ended: %v", id, err)
	}
}

// reject tells a peer the server is full and closes it.  It runs on its
// own goroutine so a slow peer cannot stall the accept loop.
func (m *ServeMode) reject(conn net.Conn) {
	defer conn.Close()
	m.Logger.Warn("rejecting %s: server full (%d clients)", util.AddrString(conn.RemoteAddr()), m.MaxClients)
	if m.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(m.WriteTimeout)) //nolint:errcheck
	}
	if _, err := conn.Write([]byte(dispatch.ServerFullText)); err != nil && !util.IsHarmless(err) {
		m.Logger.Verbose("reject %s: %v", util.AddrString(conn.RemoteAddr()), err)
	}
}

func (m *ServeMode) repoRoot() string {
	if m.Dispatcher.Repo == nil {
		return "none"
	}
	return m.Dispatcher.Repo.Root()
}

package session

import (
	"cmp"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"reposerve/internal/errors"
	"reposerve/internal/identity"
	"reposerve/util"
)

// Registry maps identities to sessions and tracks how many connections
// are currently admitted.  All methods are safe for concurrent use; the
// lock is held only for the map or counter update, never across I/O.
type Registry struct {
	mu       sync.Mutex
	sessions map[identity.ID]*Session
	active   int
	logger   *util.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *util.Logger) *Registry {
	return &Registry{
		sessions: make(map[identity.ID]*Session),
		logger:   logger,
	}
}

// ── Admission ────────────────────────────────────────────────────────

// TryAdmit reserves a slot for a new connection if fewer than limit are
// currently admitted.  Every successful call must be paired with
// [Registry.Release] when the connection's handler exits.
func (r *Registry) TryAdmit(limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active >= limit {
		return false
	}
	r.active++
	return true
}

// Release frees a slot taken by TryAdmit.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active > 0 {
		r.active--
	}
}

// Active returns the number of admitted, not yet finished connections.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// ── Session log ──────────────────────────────────────────────────────

// Register records a newly connected session.  A second registration of
// the same identity fails with ErrDuplicateIdentity and leaves the
// first record untouched.
func (r *Registry) Register(id identity.ID, name string, addr net.Addr, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return errors.Wrapf(errors.ErrDuplicateIdentity, "register %s", id)
	}
	r.sessions[id] = &Session{
		ID:          id,
		Name:        name,
		Addr:        util.AddrString(addr),
		ConnectedAt: at,
	}
	return nil
}

// MarkDisconnected stamps the session's disconnect time.  Unknown
// identities are logged and ignored.
func (r *Registry) MarkDisconnected(id identity.ID, at time.Time) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		s.DisconnectedAt = at
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("mark disconnected: no session %s", id)
	}
}

// Lookup returns a copy of one session.
func (r *Registry) Lookup(id identity.ID) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, errors.Wrapf(errors.ErrSessionNotFound, "lookup %s", id)
	}
	return *s, nil
}

// Snapshot returns copies of every session ever registered, in
// ascending identity order.
func (r *Registry) Snapshot() []Session {
	r.mu.Lock()
	out := lo.MapToSlice(r.sessions, func(_ identity.ID, s *Session) Session { return *s })
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Session) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// StatusReport renders every session for the `status` command.  The
// disconnect line appears only once a session has closed.
func (r *Registry) StatusReport() string {
	var b strings.Builder
	b.WriteString("Current clients:\n")
	for _, s := range r.Snapshot() {
		fmt.Fprintf(&b, "%s (%s):\n", s.ID, s.Name)
		fmt.Fprintf(&b, "  Address: %s\n", s.Addr)
		fmt.Fprintf(&b, "  Connected: %s\n", s.ConnectedAt.Format(TimeLayout))
		if !s.Connected() {
			fmt.Fprintf(&b, "  Disconnected: %s\n", s.DisconnectedAt.Format(TimeLayout))
		}
	}
	return b.String()
}

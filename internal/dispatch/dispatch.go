// Package dispatch runs the per-connection command protocol.
//
// A handler moves through Registering → Active → Closing → Closed.  It
// owns its net.Conn for the whole lifetime and shares nothing with other
// handlers except the session registry, the repository, and the metrics
// collector, all of which are safe for concurrent use.
//
// Wire format: every message is a raw write with no framing, and every
// request is a single read of at most BufSize bytes.  A `get` response is
// the file's bytes in ChunkSize writes with no header or terminator.
package dispatch

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"reposerve/internal/errors"
	"reposerve/internal/identity"
	"reposerve/internal/metrics"
	"reposerve/internal/repository"
	"reposerve/internal/session"
	"reposerve/util"
)

// ServerFullText is sent, instead of an identity, to a connection that
// arrives while the server is at capacity.
const ServerFullText = "Server is full. Please try again later."

// Protocol texts.
const (
	welcomeFmt     = "Welcome %s! You are now connected."
	goodbyeFmt     = "Goodbye %s! Disconnecting."
	notFoundFmt    = "Error: File '%s' not found"
	listHeader     = "Available files:\n"
	listEmpty      = "Repository is empty"
	listErrPrefix  = "Error accessing repository: "
	sendErrPrefix  = "Error sending file: "
	noFileNameText = "Error: no file name given (usage: get <filename>)"
	ackSuffix      = " ACK"
	ackText        = "ACK"
)

// Dispatcher holds what every connection handler needs.  One Dispatcher
// serves all connections of a server.
type Dispatcher struct {
	Registry *session.Registry
	Repo     *repository.Repository
	Metrics  *metrics.Collector // may be nil
	Logger   *util.Logger

	BufSize      int           // max bytes per request read; 0 = util.DefaultBufSize
	ChunkSize    int           // transfer chunk size; 0 = repository.DefaultChunkSize
	ReadTimeout  time.Duration // per-read deadline; 0 = none
	WriteTimeout time.Duration // per-write deadline; 0 = none
}

// Serve runs the full lifecycle for one accepted connection and closes
// it before returning.  The returned error is the failure that ended the
// session, or nil when the peer left with `exit` or by closing.
func (d *Dispatcher) Serve(conn net.Conn, id identity.ID) error {
	h := &handler{
		d:      d,
		conn:   conn,
		id:     id,
		addr:   util.AddrString(conn.RemoteAddr()),
		logger: d.Logger.With("client", id.String()),
	}
	return h.run()
}

// handler is the state of one connection.
type handler struct {
	d          *Dispatcher
	conn       net.Conn
	id         identity.ID
	addr       string
	name       string
	state      State
	registered bool
	logger     *util.Logger
}

func (h *handler) run() error {
	bp := util.GetBufSize(h.bufSize())
	defer util.PutBuf(bp)
	buf := *bp

	err := h.register(buf)
	if err == nil {
		h.transition(Active)
		err = h.loop(buf)
	}
	h.close(err)

	if util.IsHarmless(err) {
		return nil
	}
	return err
}

func (h *handler) transition(to State) {
	h.logger.Debug("%s -> %s", h.state, to)
	h.state = to
}

// ── Registering ──────────────────────────────────────────────────────

func (h *handler) register(buf []byte) error {
	h.state = Registering
	if err := h.send(h.id.String()); err != nil {
		return err
	}

	n, err := h.read(buf)
	if err != nil {
		return err
	}
	h.name = strings.TrimSpace(string(buf[:n]))
	if h.name == "" {
		h.name = "Client" + h.id.String()
	}

	if err := h.d.Registry.Register(h.id, h.name, h.conn.RemoteAddr(), time.Now()); err != nil {
		return err
	}
	h.registered = true
	h.d.Metrics.SessionOpened()
	h.logger.Info("%s (%s) connected from %s", h.name, h.id, h.addr)

	return h.send(fmt.Sprintf(welcomeFmt, h.name))
}

// ── Active ───────────────────────────────────────────────────────────

// errExit ends the loop after a successful `exit`.
var errExit = errors.New("client requested exit")

func (h *handler) loop(buf []byte) error {
	for {
		n, err := h.read(buf)
		if err != nil {
			return err
		}
		h.d.Metrics.Command()

		if err := h.dispatch(string(buf[:n])); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			return err
		}
	}
}

// dispatch answers one request.  Commands are matched case-insensitively
// after trimming surrounding whitespace; anything unrecognised is echoed.
func (h *handler) dispatch(raw string) error {
	msg := strings.TrimSpace(raw)
	h.logger.Verbose("request %q", msg)

	fields := strings.Fields(msg)
	verb := ""
	if len(fields) > 0 {
		verb = strings.ToLower(fields[0])
	}

	switch {
	case len(fields) == 1 && verb == "exit":
		if err := h.send(fmt.Sprintf(goodbyeFmt, h.name)); err != nil {
			return err
		}
		return errExit
	case len(fields) == 1 && verb == "status":
		return h.send(h.d.Registry.StatusReport())
	case len(fields) == 1 && verb == "list":
		return h.list()
	case verb == "get":
		return h.get(strings.TrimSpace(msg[len(fields[0]):]))
	default:
		return h.echo(raw)
	}
}

func (h *handler) list() error {
	names, err := h.d.Repo.List()
	switch {
	case err != nil:
		h.logger.Warn("list: %v", err)
		return h.send(listErrPrefix + err.Error())
	case len(names) == 0:
		return h.send(listEmpty)
	default:
		return h.send(listHeader + strings.Join(names, "\n"))
	}
}

func (h *handler) get(name string) error {
	if name == "" {
		return h.send(noFileNameText)
	}

	tr, err := h.d.Repo.Stream(name, h.d.ChunkSize, h.write)
	switch {
	case err == nil:
		h.d.Metrics.FileServed()
		h.logger.Info("sent %q: %d bytes in %d chunks, blake2b %s", tr.Name, tr.Bytes, tr.Chunks, tr.Digest)
		return nil
	case errors.Is(err, errors.ErrFileNotFound):
		h.logger.Verbose("get %q: %v", name, err)
		return h.send(fmt.Sprintf(notFoundFmt, name))
	case errors.Is(err, errors.ErrRepositoryAccess):
		h.logger.Warn("get %q failed after %d bytes: %v", name, tr.Bytes, err)
		h.d.Metrics.RecordError(err.Error())
		return h.send(sendErrPrefix + err.Error())
	default:
		// The connection itself failed mid-transfer.
		return err
	}
}

func (h *handler) echo(raw string) error {
	text := strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(text) == "" {
		return h.send(ackText)
	}
	return h.send(text + ackSuffix)
}

// ── Closing ──────────────────────────────────────────────────────────

func (h *handler) close(cause error) {
	h.transition(Closing)

	switch {
	case cause == nil, util.IsHarmless(cause):
	case util.IsTimeout(cause):
		h.logger.Warn("idle timeout, closing")
	default:
		h.logger.Error("%v", cause)
		h.d.Metrics.RecordError(cause.Error())
	}

	if h.registered {
		h.d.Registry.MarkDisconnected(h.id, time.Now())
		h.d.Metrics.SessionClosed()
		h.logger.Info("%s (%s) disconnected", h.name, h.id)
	}
	h.conn.Close() //nolint:errcheck
	h.transition(Closed)
}

// ── I/O ──────────────────────────────────────────────────────────────

func (h *handler) bufSize() int {
	if h.d.BufSize > 0 {
		return h.d.BufSize
	}
	return util.DefaultBufSize
}

// read performs one Read under the read deadline.  A zero-byte read is
// treated as the peer closing.
func (h *handler) read(buf []byte) (int, error) {
	if h.d.ReadTimeout > 0 {
		h.conn.SetReadDeadline(time.Now().Add(h.d.ReadTimeout)) //nolint:errcheck
	}
	n, err := h.conn.Read(buf)
	if n > 0 {
		h.d.Metrics.BytesReceived(int64(n))
		return n, nil
	}
	if err == nil || util.IsHarmless(err) {
		return 0, io.EOF
	}
	return 0, errors.Wrap("read", h.addr, err)
}

func (h *handler) send(msg string) error {
	return h.write([]byte(msg))
}

func (h *handler) write(p []byte) error {
	if h.d.WriteTimeout > 0 {
		h.conn.SetWriteDeadline(time.Now().Add(h.d.WriteTimeout)) //nolint:errcheck
	}
	n, err := h.conn.Write(p)
	h.d.Metrics.BytesSent(int64(n))
	if err != nil {
		return errors.Wrap("write", h.addr, err)
	}
	return nil
}

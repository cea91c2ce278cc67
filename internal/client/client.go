// Package client speaks the reposerve wire protocol from the connecting
// side.
//
// The protocol is half-duplex: every request gets exactly one write in
// reply, except `get`, whose reply is the raw file in several writes with
// no length or terminator.  Fetch therefore treats a quiet connection as
// the end of a transfer.
package client

import (
	"net"
	"strings"
	"time"

	"reposerve/internal/dispatch"
	"reposerve/internal/errors"
	"reposerve/internal/identity"
	"reposerve/util"
)

// Default timeouts.
const (
	DefaultReadTimeout = 10 * time.Second
	DefaultIdleTimeout = 500 * time.Millisecond
)

// Client is one registered connection to a server.
type Client struct {
	conn net.Conn
	buf  []byte

	ID      identity.ID
	Name    string
	Welcome string

	// ReadTimeout bounds the wait for the first byte of any reply.
	ReadTimeout time.Duration
	// IdleTimeout ends a Fetch once no further chunk arrives in time.
	IdleTimeout time.Duration
}

// Handshake performs registration on a fresh connection: it reads the
// identity, sends name, and reads the welcome.  When the server is full
// the error matches ErrCapacityExceeded and carries the server's text;
// the connection is closed in that case.
func Handshake(conn net.Conn, name string) (*Client, error) {
	c, err := Greet(conn)
	if err != nil {
		return nil, err
	}
	if err := c.Register(name); err != nil {
		return nil, err
	}
	return c, nil
}

// Greet reads the identity the server assigns on connect.  It is the
// first half of Handshake, for callers that ask for a name only after
// learning their identity.
func Greet(conn net.Conn) (*Client, error) {
	c := &Client{
		conn:        conn,
		buf:         make([]byte, util.DefaultBufSize),
		ReadTimeout: DefaultReadTimeout,
		IdleTimeout: DefaultIdleTimeout,
	}

	greeting, err := c.read(c.ReadTimeout)
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, err
	}
	id, perr := identity.Parse(strings.TrimSpace(greeting))
	if perr != nil {
		conn.Close() //nolint:errcheck
		if strings.HasPrefix(greeting, dispatch.ServerFullText) {
			return nil, errors.Mark(errors.New(greeting), errors.ErrCapacityExceeded)
		}
		return nil, errors.Newf("unexpected greeting %q", greeting)
	}
	c.ID = id
	return c, nil
}

// Register sends the display name and reads the welcome.  A blank name
// leaves the choice to the server, which uses Client<ID>.
func (c *Client) Register(name string) error {
	c.Name = strings.TrimSpace(name)
	msg := c.Name
	if msg == "" {
		// A zero-length write sends nothing; the server trims this away.
		msg = " "
		c.Name = "Client" + c.ID.String()
	}
	if err := c.write(msg); err != nil {
		return err
	}
	welcome, err := c.read(c.ReadTimeout)
	if err != nil {
		return err
	}
	c.Welcome = welcome
	return nil
}

// Do sends one command and returns the single reply.  An empty command
// is sent as a single space, which the server answers with a bare ACK.
func (c *Client) Do(cmd string) (string, error) {
	if cmd == "" {
		cmd = " "
	}
	if err := c.write(cmd); err != nil {
		return "", err
	}
	return c.read(c.ReadTimeout)
}

// Fetch requests a file and collects chunks until the connection has
// been quiet for IdleTimeout.  An empty file yields no bytes and no
// error once ReadTimeout passes.  If the whole reply is exactly the
// server's not-found or missing-name text, the matching sentinel is
// returned along with that text.
func (c *Client) Fetch(name string) ([]byte, error) {
	if err := c.write("get " + name); err != nil {
		return nil, err
	}

	var data []byte
	wait := c.ReadTimeout
	for {
		chunk, err := c.read(wait)
		if err != nil {
			if util.IsTimeout(err) {
				break
			}
			return data, err
		}
		data = append(data, chunk...)
		wait = c.IdleTimeout
	}

	switch string(data) {
	case "Error: File '" + strings.TrimSpace(name) + "' not found":
		return data, errors.Wrapf(errors.ErrFileNotFound, "fetch %q", name)
	case "Error: no file name given (usage: get <filename>)":
		return data, errors.Wrapf(errors.ErrNoFileName, "fetch")
	}
	return data, nil
}

// Exit sends `exit`, returns the server's goodbye, and closes the
// connection.
func (c *Client) Exit() (string, error) {
	defer c.Close() //nolint:errcheck
	return c.Do("exit")
}

// Close closes the connection without saying goodbye.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) read(timeout time.Duration) (string, error) {
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout)) //nolint:errcheck
	} else {
		c.conn.SetReadDeadline(time.Time{}) //nolint:errcheck
	}
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		return string(c.buf[:n]), nil
	}
	if err == nil {
		return "", errors.Wrap("read", util.AddrString(c.conn.RemoteAddr()), errors.New("empty read"))
	}
	return "", errors.Wrap("read", util.AddrString(c.conn.RemoteAddr()), err)
}

func (c *Client) write(msg string) error {
	if _, err := c.conn.Write([]byte(msg)); err != nil {
		return errors.Wrap("write", util.AddrString(c.conn.RemoteAddr()), err)
	}
	return nil
}

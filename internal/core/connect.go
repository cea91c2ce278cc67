package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"reposerve/internal/client"
	"reposerve/internal/errors"
	"reposerve/internal/transport"
	"reposerve/util"
)

// Console prompts, shown only when stdin is a terminal.
const (
	namePrompt    = "Enter client name: "
	messagePrompt = "Enter your message: "
)

// ConnectMode dials a server and runs the interactive console: each
// input line is one request and each reply is printed.
type ConnectMode struct {
	Dialer  transport.Dialer
	Address string
	Name    string // empty = ask on stdin
	Logger  *util.Logger

	ReadTimeout time.Duration // 0 = client.DefaultReadTimeout
	IdleTimeout time.Duration // 0 = client.DefaultIdleTimeout

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// interactive reports whether stdin is a terminal.
func (m *ConnectMode) interactive() bool {
	f, ok := m.stdin().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run dials, registers, and relays console lines until `exit`, end of
// input, or a connection failure.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	m.Logger.Verbose("connecting to %s", m.Address)
	conn, err := m.Dialer.Dial(ctx, "tcp", m.Address)
	if err != nil {
		return errors.Wrapf(err, "connect to %s", m.Address)
	}

	out := m.stdout()
	in := bufio.NewScanner(m.stdin())
	prompt := m.interactive()

	c, err := client.Greet(conn)
	if err != nil {
		if errors.Is(err, errors.ErrCapacityExceeded) {
			fmt.Fprintln(out, err.Error())
		}
		return err
	}
	defer c.Close() //nolint:errcheck
	if m.ReadTimeout > 0 {
		c.ReadTimeout = m.ReadTimeout
	}
	if m.IdleTimeout > 0 {
		c.IdleTimeout = m.IdleTimeout
	}
	fmt.Fprintf(out, "Client ID : Client%s\n", c.ID)

	name := m.Name
	if name == "" {
		if prompt {
			fmt.Fprint(out, namePrompt)
		}
		if in.Scan() {
			name = in.Text()
		}
	}
	if err := c.Register(name); err != nil {
		return err
	}
	fmt.Fprintln(out, c.Welcome)

	for {
		if ctx.Err() != nil {
			return m.leave(c, out)
		}
		if prompt {
			fmt.Fprint(out, messagePrompt)
		}
		if !in.Scan() {
			if err := in.Err(); err != nil {
				return errors.Wrapf(err, "read input")
			}
			return m.leave(c, out)
		}
		line := in.Text()
		cmd := strings.TrimSpace(line)

		switch fields := strings.Fields(cmd); {
		case strings.EqualFold(cmd, "exit"):
			return m.leave(c, out)
		case len(fields) > 0 && strings.EqualFold(fields[0], "get"):
			data, err := c.Fetch(strings.TrimSpace(cmd[len(fields[0]):]))
			if err != nil && !errors.Is(err, errors.ErrFileNotFound) && !errors.Is(err, errors.ErrNoFileName) {
				return err
			}
			fmt.Fprintf(out, "Server response: %s\n", data)
		default:
			reply, err := c.Do(line)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Server response: %s\n", reply)
		}
	}
}

// leave sends `exit` and prints the server's goodbye.
func (m *ConnectMode) leave(c *client.Client, out io.Writer) error {
	bye, err := c.Exit()
	if err != nil {
		if util.IsHarmless(err) {
			return nil
		}
		return err
	}
	fmt.Fprintln(out, bye)
	return nil
}

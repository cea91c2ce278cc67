package core

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reposerve/internal/client"
	"reposerve/internal/dispatch"
	"reposerve/internal/errors"
	"reposerve/internal/identity"
	"reposerve/internal/metrics"
	"reposerve/internal/repository"
	"reposerve/internal/session"
	"reposerve/util"
)

type testServer struct {
	addr string
	mode *ServeMode
	done chan error
}

// startServe runs a ServeMode on a loopback port until the test ends.
func startServe(t *testing.T, maxClients int, files map[string][]byte) *testServer {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0o644))
	}
	logger := util.NewLogger(0)
	repo, err := repository.New(dir, logger)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	reg := session.NewRegistry(logger)
	m := metrics.New()
	mode := &ServeMode{
		Listener:   ln,
		MaxClients: maxClients,
		Allocator:  &identity.Allocator{},
		Registry:   reg,
		Dispatcher: &dispatch.Dispatcher{
			Registry:     reg,
			Repo:         repo,
			Metrics:      m,
			Logger:       logger,
			ChunkSize:    1024,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Metrics:      m,
		Logger:       logger,
		WriteTimeout: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{addr: ln.Addr().String(), mode: mode, done: make(chan error, 1)}
	go func() { ts.done <- mode.Run(ctx) }()
	t.Cleanup(cancel)
	return ts
}

func (ts *testServer) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", ts.addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck
	return conn
}

func (ts *testServer) join(t *testing.T, name string) *client.Client {
	t.Helper()
	c, err := client.Handshake(ts.dial(t), name)
	require.NoError(t, err)
	c.IdleTimeout = 200 * time.Millisecond
	c.ReadTimeout = 2 * time.Second
	return c
}

func TestServeMode_EchoAndExit(t *testing.T) {
	ts := startServe(t, 3, nil)
	c := ts.join(t, "alice")
	assert.Equal(t, identity.ID(1), c.ID)
	assert.Equal(t, "Welcome alice! You are now connected.", c.Welcome)

	reply, err := c.Do("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello ACK", reply)

	bye, err := c.Exit()
	require.NoError(t, err)
	assert.Equal(t, "Goodbye alice! Disconnecting.", bye)

	assert.Eventually(t, func() bool { return ts.mode.Registry.Active() == 0 },
		2*time.Second, 10*time.Millisecond, "slot is released after exit")
}

func TestServeMode_CapacityDoesNotConsumeIdentity(t *testing.T) {
	ts := startServe(t, 1, nil)
	first := ts.join(t, "alice")
	assert.Equal(t, identity.ID(1), first.ID)

	_, err := client.Greet(ts.dial(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCapacityExceeded))
	assert.Equal(t, "Server is full. Please try again later.", err.Error())
	assert.Equal(t, uint64(1), ts.mode.Allocator.Issued())
	assert.Equal(t, int64(1), ts.mode.Metrics.RejectedConnections())

	_, err = first.Exit()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ts.mode.Registry.Active() == 0 },
		2*time.Second, 10*time.Millisecond)

	second := ts.join(t, "bob")
	assert.Equal(t, identity.ID(2), second.ID, "the rejected connection got no identity")
}

func TestServeMode_RejectedPeerSeesOnlyMessage(t *testing.T) {
	ts := startServe(t, 1, nil)
	ts.join(t, "alice")

	conn := ts.dial(t)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, dispatch.ServerFullText, string(got))
}

func TestServeMode_GetExactBytes(t *testing.T) {
	content := bytes.Repeat([]byte{0, 1, 2, 3, 254, 255}, 1000)
	ts := startServe(t, 3, map[string][]byte{"blob.bin": content})
	c := ts.join(t, "alice")

	got, err := c.Fetch("blob.bin")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	assert.Eventually(t, func() bool { return ts.mode.Metrics.FilesServed() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestServeMode_GetRejections(t *testing.T) {
	ts := startServe(t, 3, map[string][]byte{"a.txt": []byte("a")})
	c := ts.join(t, "alice")

	for _, name := range []string{"missing.txt", "../../etc/passwd"} {
		data, err := c.Fetch(name)
		assert.True(t, errors.Is(err, errors.ErrFileNotFound), name)
		assert.Equal(t, "Error: File '"+name+"' not found", string(data))
	}
}

func TestServeMode_ListAndStatus(t *testing.T) {
	ts := startServe(t, 3, map[string][]byte{"b.txt": nil, "a.txt": nil})
	alice := ts.join(t, "alice")
	bob := ts.join(t, "bob")

	reply, err := alice.Do("list")
	require.NoError(t, err)
	assert.Equal(t, "Available files:\na.txt\nb.txt", reply)

	_, err = bob.Exit()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, err := ts.mode.Registry.Lookup(2)
		return err == nil && !s.Connected()
	}, 2*time.Second, 10*time.Millisecond)

	report, err := alice.Do("status")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(report, "Current clients:\n1 (alice):\n"))
	assert.Contains(t, report, "2 (bob):\n")
	assert.Equal(t, 1, strings.Count(report, "Disconnected:"), "only bob has left")
}

// TestServeMode_SlowTransferDoesNotBlockOthers stalls one client in the
// middle of a large transfer and checks another client is still served.
func TestServeMode_SlowTransferDoesNotBlockOthers(t *testing.T) {
	big := bytes.Repeat([]byte("x"), 16<<20)
	ts := startServe(t, 3, map[string][]byte{"big.bin": big})

	slow := ts.dial(t)
	_, err := client.Handshake(slow, "slow")
	require.NoError(t, err)
	_, err = slow.Write([]byte("get big.bin"))
	require.NoError(t, err)
	// slow never reads, so its handler blocks once socket buffers fill.

	fast := ts.join(t, "fast")
	start := time.Now()
	report, err := fast.Do("status")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, report, "1 (slow):")
	assert.Contains(t, report, "2 (fast):")
}

func TestServeMode_ListenerClosed(t *testing.T) {
	ts := startServe(t, 3, nil)
	ts.join(t, "alice")

	ln := ts.mode.Listener
	require.NoError(t, ln.Close())

	select {
	case err := <-ts.done:
		// Closing the listener without cancelling is an accept failure.
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeMode_ContextCancel(t *testing.T) {
	logger := util.NewLogger(0)
	reg := session.NewRegistry(logger)
	repo, err := repository.New(t.TempDir(), logger)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	mode := &ServeMode{
		Listener:   ln,
		MaxClients: 1,
		Allocator:  &identity.Allocator{},
		Registry:   reg,
		Dispatcher: &dispatch.Dispatcher{Registry: reg, Repo: repo, Logger: logger},
		Logger:     logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mode.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestServeMode_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	logger := util.NewLogger(0)
	reg := session.NewRegistry(logger)
	mode := &ServeMode{
		Address:    ln.Addr().String(), // already taken
		MaxClients: 1,
		Allocator:  &identity.Allocator{},
		Registry:   reg,
		Dispatcher: &dispatch.Dispatcher{Registry: reg, Logger: logger},
		Logger:     logger,
	}

	err = mode.Run(context.Background())
	require.Error(t, err)
	var ne *errors.NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "listen", ne.Op)
}

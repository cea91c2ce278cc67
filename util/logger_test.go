package util

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(3) // debug level
	l.SetOutput(&buf)
	l.SetTimestamps(false)

	l.Error("e")
	l.Warn("w")
	l.Info("i")
	l.Verbose("v")
	l.Debug("d")

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 5, output)

	wantPrefixes := []string{"[ERR]", "[WRN]", "[INF]", "[VRB]", "[DBG]"}
	for i, prefix := range wantPrefixes {
		assert.True(t, strings.HasPrefix(lines[i], prefix), "line %d %q missing prefix %q", i, lines[i], prefix)
	}
}

func TestLogger_QuietMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(0) // quiet
	l.SetOutput(&buf)
	l.SetTimestamps(false)

	l.Info("should not appear")
	l.Verbose("should not appear")
	l.Debug("should not appear")
	l.Error("always appears")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1, buf.String())
}

func TestLogger_VerboseHidesDebug(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(2)
	l.SetOutput(&buf)
	l.SetTimestamps(false)

	l.Verbose("shown")
	l.Debug("hidden")

	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestLogger_Timestamps(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(1)
	l.SetOutput(&buf)
	l.SetTimestamps(true)

	l.Info("test")

	// Timestamp format is "HH:MM:SS.mmm"
	output := buf.String()
	assert.Regexp(t, `^\d{2}:\d{2}:\d{2}\.\d{3} \[INF\] test`, output)
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(1)
	l.SetOutput(&buf)
	l.SetTimestamps(false)

	child := l.With("client", "7")
	child.Info("registered")
	l.Info("parent line")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"client": "7"`)
	assert.NotContains(t, lines[1], "client")
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	l := NewFileLogger(1, path, 1, 1)
	l.Info("to file")
	require.NoError(t, l.Sync())

	assert.FileExists(t, path)
}

func TestBufPool_RoundTrip(t *testing.T) {
	buf := GetBuf()
	require.NotNil(t, buf)
	assert.Len(t, *buf, DefaultBufSize)

	(*buf)[0] = 0xFF
	PutBuf(buf)

	buf2 := GetBuf()
	require.NotNil(t, buf2)
	PutBuf(buf2)
}

func TestPutBuf_Nil(t *testing.T) {
	// Should not panic.
	PutBuf(nil)
}

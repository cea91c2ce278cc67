package repository

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"reposerve/internal/errors"
	"reposerve/util"
)

func newRepo(t *testing.T, files map[string]string) *Repository {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	r, err := New(dir, util.NewLogger(0))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() }) //nolint:errcheck
	return r
}

func TestNew_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "repository")
	r, err := New(root, nil)
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck

	st, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
	assert.True(t, filepath.IsAbs(r.Root()))

	names, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestList_SortedRegularFilesOnly(t *testing.T) {
	r := newRepo(t, map[string]string{"b.txt": "b", "a.txt": "a", "c.bin": "c"})
	require.NoError(t, os.Mkdir(filepath.Join(r.Root(), "subdir"), 0o755))

	names, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.bin"}, names)
}

func TestList_NoticesNewFiles(t *testing.T) {
	r := newRepo(t, map[string]string{"a.txt": "a"})

	names, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, names)

	require.NoError(t, os.WriteFile(filepath.Join(r.Root(), "b.txt"), []byte("b"), 0o644))

	assert.Eventually(t, func() bool {
		names, err := r.List()
		return err == nil && len(names) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestList_AfterClose(t *testing.T) {
	r := newRepo(t, map[string]string{"a.txt": "a"})
	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "second Close is a no-op")

	require.NoError(t, os.WriteFile(filepath.Join(r.Root(), "b.txt"), []byte("b"), 0o644))
	names, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
}

func TestList_RootRemoved(t *testing.T) {
	r := newRepo(t, nil)
	require.NoError(t, os.RemoveAll(r.Root()))

	_, err := r.List()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRepositoryAccess))
}

func TestOpen_Rejections(t *testing.T) {
	r := newRepo(t, map[string]string{"ok.txt": "fine"})
	require.NoError(t, os.Mkdir(filepath.Join(r.Root(), "dir"), 0o755))

	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(r.Root(), "escape.txt")))

	tests := []struct {
		name string
		file string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"missing", "nope.txt"},
		{"directory", "dir"},
		{"dot", "."},
		{"parent traversal", "../../etc/passwd"},
		{"absolute", "/etc/passwd"},
		{"symlink escape", "escape.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := r.Open(tt.file)
			assert.Nil(t, f)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrFileNotFound), "got %v", err)
		})
	}
}

func TestOpen_InsideRoot(t *testing.T) {
	r := newRepo(t, map[string]string{"ok.txt": "fine"})
	require.NoError(t, os.Symlink(filepath.Join(r.Root(), "ok.txt"), filepath.Join(r.Root(), "alias.txt")))

	for _, name := range []string{"ok.txt", "./ok.txt", "dir/../ok.txt", "alias.txt"} {
		f, err := r.Open(name)
		require.NoError(t, err, name)
		f.Close() //nolint:errcheck
	}
}

func TestStream_ChunksAndDigest(t *testing.T) {
	content := make([]byte, 2500)
	_, err := rand.Read(content)
	require.NoError(t, err)
	r := newRepo(t, map[string]string{"blob.bin": string(content)})

	var (
		got    bytes.Buffer
		chunks []int
	)
	tr, err := r.Stream("blob.bin", 1024, func(p []byte) error {
		chunks = append(chunks, len(p))
		got.Write(p)
		return nil
	})
	require.NoError(t, err)

	sum := blake2b.Sum256(content)
	assert.Equal(t, content, got.Bytes())
	assert.Equal(t, []int{1024, 1024, 452}, chunks)
	assert.Equal(t, int64(2500), tr.Bytes)
	assert.Equal(t, 3, tr.Chunks)
	assert.Equal(t, hex.EncodeToString(sum[:]), tr.Digest)
}

func TestStream_EmptyFile(t *testing.T) {
	r := newRepo(t, map[string]string{"empty.txt": ""})

	called := false
	tr, err := r.Stream("empty.txt", 0, func([]byte) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Zero(t, tr.Bytes)
	assert.Zero(t, tr.Chunks)
}

func TestStream_LargeChunkSize(t *testing.T) {
	r := newRepo(t, map[string]string{"a.txt": "hello world"})

	var got []byte
	tr, err := r.Stream("a.txt", 64*1024, func(p []byte) error {
		got = append(got, p...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	assert.Equal(t, 1, tr.Chunks)
}

func TestStream_EmitErrorStops(t *testing.T) {
	r := newRepo(t, map[string]string{"a.txt": string(make([]byte, 4096))})
	boom := errors.New("peer gone")

	calls := 0
	tr, err := r.Stream("a.txt", 1024, func([]byte) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, errors.ErrRepositoryAccess))
	assert.Equal(t, 1, calls)
	assert.Zero(t, tr.Chunks)
}

func TestStream_NotFound(t *testing.T) {
	r := newRepo(t, nil)
	_, err := r.Stream("missing.txt", 1024, func([]byte) error { return nil })
	assert.True(t, errors.Is(err, errors.ErrFileNotFound))
}

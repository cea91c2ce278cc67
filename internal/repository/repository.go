// Package repository serves files from a single directory on disk.
//
// Only regular files are listed or opened, and every name is resolved
// against the root so that nothing outside it can be reached, whether
// by "..", an absolute path, or a symlink.
package repository

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"

	"reposerve/internal/errors"
	"reposerve/util"
)

// Repository is a read-only view of one directory.  It is safe for
// concurrent use by all session handlers.
type Repository struct {
	root   string
	logger *util.Logger

	mu      sync.Mutex
	cached  []string
	valid   bool
	modTime time.Time

	watcher   *fsnotify.Watcher
	stopWatch chan struct{}
	closeOnce sync.Once
}

// New opens the repository at root, creating the directory if it does
// not exist yet.
func New(root string, logger *util.Logger) (*Repository, error) {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "create repository %q", root), errors.ErrRepositoryAccess)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "resolve repository %q", root), errors.ErrRepositoryAccess)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "resolve repository %q", root), errors.ErrRepositoryAccess)
	}

	r := &Repository{
		root:      resolved,
		logger:    logger,
		stopWatch: make(chan struct{}),
	}
	r.startWatcher()
	return r, nil
}

// Root returns the absolute, symlink-free repository path.
func (r *Repository) Root() string { return r.root }

// Close stops the directory watcher.  The repository stays usable and
// falls back to reading the directory on every List.
func (r *Repository) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stopWatch)
		if r.watcher != nil {
			err = r.watcher.Close()
		}
		r.invalidate()
	})
	return err
}

// ── Listing ──────────────────────────────────────────────────────────

// List returns the names of the regular files directly under the root,
// sorted by name.  An empty slice means the repository is empty.
func (r *Repository) List() ([]string, error) {
	st, err := os.Stat(r.root)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrRepositoryAccess)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.valid && r.watcher != nil && r.modTime.Equal(st.ModTime()) {
		return append([]string(nil), r.cached...), nil
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrRepositoryAccess)
	}
	// ReadDir returns entries sorted by filename.
	names := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return e.Name(), e.Type().IsRegular()
	})

	r.cached = names
	r.modTime = st.ModTime()
	r.valid = true
	return append([]string(nil), names...), nil
}

func (r *Repository) invalidate() {
	r.mu.Lock()
	r.valid = false
	r.mu.Unlock()
}

func (r *Repository) startWatcher() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Warn("repository: file watcher unavailable, listing is uncached: %v", err)
		return
	}
	if err := w.Add(r.root); err != nil {
		r.logger.Warn("repository: watch %s: %v", r.root, err)
		w.Close() //nolint:errcheck
		return
	}
	r.watcher = w
	go r.watch()
}

// watch drops the cached listing on any change in the root directory.
func (r *Repository) watch() {
	for {
		select {
		case <-r.stopWatch:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.logger.Debug("repository: %s %s", ev.Op, ev.Name)
			r.invalidate()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("repository watcher: %v", err)
			r.invalidate()
		}
	}
}

// ── Access ───────────────────────────────────────────────────────────

// Open returns the named file for reading.  Names that are empty,
// absolute, resolve outside the root, do not exist, or are not regular
// files all yield ErrFileNotFound.
func (r *Repository) Open(name string) (*os.File, error) {
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open %q", name), errors.ErrFileNotFound)
	}
	st, err := f.Stat()
	if err != nil || !st.Mode().IsRegular() {
		f.Close() //nolint:errcheck
		return nil, errors.Wrapf(errors.ErrFileNotFound, "open %q: not a regular file", name)
	}
	return f, nil
}

// resolve maps name to a path inside the root, following symlinks.
func (r *Repository) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" || filepath.IsAbs(name) {
		return "", errors.Wrapf(errors.ErrFileNotFound, "resolve %q", name)
	}
	joined := filepath.Join(r.root, name)
	if !r.contains(joined) {
		return "", errors.Wrapf(errors.ErrFileNotFound, "resolve %q: outside repository", name)
	}
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "resolve %q", name), errors.ErrFileNotFound)
	}
	if !r.contains(resolved) {
		return "", errors.Wrapf(errors.ErrFileNotFound, "resolve %q: outside repository", name)
	}
	return resolved, nil
}

func (r *Repository) contains(path string) bool {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

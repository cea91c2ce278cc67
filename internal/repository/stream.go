package repository

import (
	"encoding/hex"
	"io"

	"golang.org/x/crypto/blake2b"

	"reposerve/internal/errors"
	"reposerve/util"
)

// DefaultChunkSize is the transfer chunk size used when none is given.
const DefaultChunkSize = util.DefaultBufSize

// Transfer summarises one completed or aborted file stream.
type Transfer struct {
	Name   string
	Bytes  int64
	Chunks int
	Digest string // hex BLAKE2b-256 of the bytes emitted so far
}

// Stream reads the named file in chunkSize pieces and passes each one to
// emit, in order.  Nothing frames the transfer: no header is sent and
// the end of the file is implicit.  An empty file produces no chunks.
//
// Errors are classified for the caller:
//   - ErrFileNotFound if the file cannot be opened;
//   - ErrRepositoryAccess if reading fails part-way;
//   - any error returned by emit, unchanged in kind.
func (r *Repository) Stream(name string, chunkSize int, emit func([]byte) error) (Transfer, error) {
	t := Transfer{Name: name}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	f, err := r.Open(name)
	if err != nil {
		return t, err
	}
	defer f.Close() //nolint:errcheck

	h, err := blake2b.New256(nil)
	if err != nil {
		return t, errors.Wrapf(err, "digest")
	}

	bp := util.GetBufSize(chunkSize)
	defer util.PutBuf(bp)
	buf := *bp

	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if err := emit(chunk); err != nil {
				t.Digest = hex.EncodeToString(h.Sum(nil))
				return t, err
			}
			h.Write(chunk) //nolint:errcheck
			t.Bytes += int64(n)
			t.Chunks++
		}
		if rerr == io.EOF {
			t.Digest = hex.EncodeToString(h.Sum(nil))
			return t, nil
		}
		if rerr != nil {
			t.Digest = hex.EncodeToString(h.Sum(nil))
			return t, errors.Mark(rerr, errors.ErrRepositoryAccess)
		}
	}
}

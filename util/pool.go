package util

import "sync"

// DefaultBufSize is the size of a single protocol read or file chunk.
const DefaultBufSize = 1024

// BufPool provides reusable byte buffers for protocol reads and file
// chunks, reducing GC pressure in the per-session loops.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf retrieves a buffer from the pool.  Callers must return it
// with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// GetBufSize returns a buffer of exactly n bytes.  Pooled buffers are
// used when n fits; larger requests are allocated.
func GetBufSize(n int) *[]byte {
	if n <= 0 || n > DefaultBufSize {
		buf := make([]byte, n)
		return &buf
	}
	buf := GetBuf()
	*buf = (*buf)[:n]
	return buf
}

// PutBuf returns a buffer to the pool for reuse.  Buffers that did not
// come from the pool are dropped.
func PutBuf(buf *[]byte) {
	if buf == nil || cap(*buf) != DefaultBufSize {
		return
	}
	*buf = (*buf)[:DefaultBufSize]
	BufPool.Put(buf)
}

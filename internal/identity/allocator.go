// Package identity hands out client identities.  Identities start at 1,
// increase by one per accepted connection, and are never reused within
// the lifetime of a process.
package identity

import (
	"strconv"

	"go.uber.org/atomic"
)

// ID is a client identity.  Its decimal form is what goes on the wire.
type ID uint64

// String returns the decimal wire form.
func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Parse reads the decimal wire form.  Zero is never issued and is
// rejected.
func Parse(s string) (ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, strconv.ErrRange
	}
	return ID(n), nil
}

// Allocator issues identities.  The zero value is ready to use and safe
// for concurrent callers.
type Allocator struct {
	last atomic.Uint64
}

// Next returns a fresh identity, strictly greater than every identity
// previously returned by this allocator.
func (a *Allocator) Next() ID {
	return ID(a.last.Inc())
}

// Issued reports how many identities have been handed out.
func (a *Allocator) Issued() uint64 {
	return a.last.Load()
}

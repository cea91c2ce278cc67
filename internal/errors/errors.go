// Package errors provides domain-specific error types for reposerve.
//
// It is built on github.com/cockroachdb/errors so that sentinels survive
// wrapping, hints can be attached for the operator, and stack traces are
// recorded at the point of creation.  The rest of the tree imports this
// package instead of the standard library errors package.
package errors

import (
	"fmt"
	"net"

	crdb "github.com/cockroachdb/errors"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	// ErrCapacityExceeded is returned when a connection arrives while the
	// server already holds its maximum number of sessions.
	ErrCapacityExceeded = crdb.New("server is full")
	// ErrFileNotFound covers missing files, non-regular files, and names
	// that resolve outside the repository root.
	ErrFileNotFound = crdb.New("file not found")
	// ErrRepositoryAccess wraps failures reading the repository root.
	ErrRepositoryAccess = crdb.New("repository access failed")
	// ErrDuplicateIdentity means an identity was registered twice.  The
	// allocator makes this unreachable; seeing it is an invariant break.
	ErrDuplicateIdentity = crdb.New("duplicate session identity")
	// ErrSessionNotFound is returned for lookups of unknown identities.
	ErrSessionNotFound = crdb.New("session not found")
	// ErrNoFileName is returned by `get` without an argument.
	ErrNoFileName = crdb.New("no file name given")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation on one
// connection (the ConnectionIO kind).
type NetworkError struct {
	Op        string // operation: "dial", "listen", "accept", "write", "read"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// Config builds a ConfigError and also attaches the hint with
// [crdb.WithHint] so it can be recovered with [FlattenHints].
func Config(field string, value interface{}, message, hint string) error {
	err := error(&ConfigError{Field: field, Value: value, Message: message, Hint: hint})
	if hint != "" {
		err = crdb.WithHint(err, hint)
	}
	return err
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if crdb.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsTemporary reports whether err represents a temporary condition.
func IsTemporary(err error) bool {
	var ne *NetworkError
	if crdb.As(err, &ne) {
		return ne.Retryable // temporary ≈ retryable for network errors
	}
	return classifyRetryable(err)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if crdb.As(err, &opErr) {
		return opErr.Timeout() || opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if crdb.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [crdb.As].
func As(err error, target interface{}) bool { return crdb.As(err, target) }

// Is is [crdb.Is].
func Is(err, target error) bool { return crdb.Is(err, target) }

// New is [crdb.New].
func New(text string) error { return crdb.New(text) }

// Newf is [crdb.Newf].
func Newf(format string, args ...interface{}) error { return crdb.Newf(format, args...) }

// Wrapf is [crdb.Wrapf].
func Wrapf(err error, format string, args ...interface{}) error {
	return crdb.Wrapf(err, format, args...)
}

// Mark is [crdb.Mark]: err keeps its message but also matches reference
// under [Is].
func Mark(err, reference error) error { return crdb.Mark(err, reference) }

// WithHint is [crdb.WithHint].
func WithHint(err error, hint string) error { return crdb.WithHint(err, hint) }

// FlattenHints is [crdb.FlattenHints].
func FlattenHints(err error) string { return crdb.FlattenHints(err) }

// Unwrap is [crdb.UnwrapOnce].
func Unwrap(err error) error { return crdb.UnwrapOnce(err) }

// Join is [crdb.Join].
func Join(errs ...error) error { return crdb.Join(errs...) }

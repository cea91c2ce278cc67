package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultHost is the listen and connect host.
	DefaultHost = "localhost"

	// DefaultPort is the listen and connect port.
	DefaultPort = 12345

	// DefaultMaxClients bounds the number of concurrently admitted
	// connections.
	DefaultMaxClients = 3

	// DefaultRepoDir is the repository directory, relative to the
	// working directory.  It is created on startup if missing.
	DefaultRepoDir = "repository"

	// DefaultChunkSize is the size of each write in a file transfer.
	DefaultChunkSize = 1024

	// DefaultBufferSize is the maximum size of one request read.
	DefaultBufferSize = 1024

	// DefaultReadTimeout closes sessions that stay silent this long.
	DefaultReadTimeout = 5 * time.Minute

	// DefaultWriteTimeout bounds a single write to a slow peer.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultDialTimeout is the client's per-attempt connect timeout.
	DefaultDialTimeout = 10 * time.Second

	// DefaultIdleTimeout ends a client-side file fetch once no chunk
	// has arrived for this long.
	DefaultIdleTimeout = 500 * time.Millisecond

	// DefaultRetries is how many times the client re-dials after a
	// failed connect.
	DefaultRetries = 3

	// DefaultLogMaxSizeMB and DefaultLogMaxBackups configure log file
	// rotation.
	DefaultLogMaxSizeMB  = 50
	DefaultLogMaxBackups = 3

	// EnvPrefix prefixes every environment variable, e.g.
	// REPOSERVE_MAX_CLIENTS.
	EnvPrefix = "REPOSERVE"
)

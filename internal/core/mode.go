// Package core is the orchestration layer.  It composes the transport,
// dispatch, and client packages into complete operational modes and
// provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	identity, session, repository  →  dispatch  →  core  →  cmd (CLI)
//	transport, client              ↗
package core

import "context"

// Mode represents a complete operational mode of reposerve (serve or
// connect).  Each mode owns its full lifecycle from connection
// establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}

package main

import "time"

// Operational limits — named constants for values that would otherwise be
// scattered across multiple source files (consolidated here the way the
// teacher's own limits.go does for its own domain).
const (
	// defaultMaxConnections is the hub-wide cap on simultaneous accepted
	// sockets (spec §8: hub-wide limits exist independent of per-IP ones).
	defaultMaxConnections = 5000

	// defaultPerIPLimit is the maximum simultaneous connections accepted
	// from a single source IP (spec §4.6's clone-guard complements this at
	// the application layer; this is the transport-layer backstop).
	defaultPerIPLimit = 3

	// acceptBackoff is how long the accept loop pauses after a transient
	// Accept error (not a listener shutdown) before retrying.
	acceptBackoff = 100 * time.Millisecond

	// shutdownGrace is how long Serve loops are given to notice context
	// cancellation and tear down before the process exits anyway.
	shutdownGrace = 5 * time.Second

	// hublistRegisterInterval is how often the hub re-announces itself to
	// its configured hublist (spec §6.4's periodic hublist push).
	hublistRegisterInterval = 30 * time.Minute

	// hublistRequestTimeout bounds a single hublist registration HTTP call.
	hublistRequestTimeout = 10 * time.Second

	// chatLogMaxLines is the in-memory rolling mainchat buffer size kept
	// for `!last`-style operator review.
	chatLogMaxLines = 2000
)

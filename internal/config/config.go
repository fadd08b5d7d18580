// Package config defines the in-process wiring a frontend, backend, or
// keeper process needs to start, and a YAML file format for the parts of
// it that make sense to persist (ring membership) versus the parts that
// are always supplied by the entrypoint itself (readiness/shutdown
// signaling, the storage engine constructor).
package config

import (
	"tribfs"
)

// StorageFactory constructs a fresh Storage capability for a backend
// process to serve, deferred to process start so the same Config shape
// works whether the backend is memory-backed (tests) or SQLite-backed
// (cmd/trib-back).
type StorageFactory func() (tribfs.Storage, error)

// Config holds the fields needed to stand up one participant in the
// ring: a frontend, a backend, or a keeper.
type Config struct {
	// Backs is the full set of backend addresses in ring order.
	Backs []string
	// Addrs is the full set of keeper addresses, index-aligned with Backs
	// for the keeper that watches the backend at the same index.
	Addrs []string
	// This is this process's own index into Backs/Addrs, or -1 for a
	// frontend process (which has no fixed index).
	This int
	// Ready is closed (by the caller, once listening) to signal the
	// process reached steady state; nil is permitted and ignored.
	Ready chan<- struct{}
	// Shutdown is observed for a graceful-stop request; nil means never.
	Shutdown <-chan struct{}
	// Storage builds the local storage engine a backend process serves.
	// Unused by a frontend or keeper process.
	Storage StorageFactory
}

// SignalReady closes Ready if the caller configured one.
func (c Config) SignalReady() {
	if c.Ready != nil {
		close(c.Ready)
	}
}

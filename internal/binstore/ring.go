// Package binstore hashes a bin name to a starting index in a fixed
// backend address ring and produces the rotated per-bin ring the
// replication router walks to find a live primary and backup.
package binstore

import "github.com/cespare/xxhash/v2"

// Handle is bound to a bin name, its rotated ring, and a per-handle
// Lamport clock seeded at zero (bin handles are ephemeral and rebuilt per
// operation).
type Handle struct {
	Name  string
	Ring  []string
	Clock uint64
}

// Dispatcher hashes bin names against a fixed, ordered address ring.
type Dispatcher struct {
	ring []string
}

// New builds a Dispatcher over the given ordered backend addresses. The
// ring order is fixed at configuration time; Bin only ever rotates a copy
// of it, never mutates it.
func New(ring []string) *Dispatcher {
	cp := make([]string, len(ring))
	copy(cp, ring)
	return &Dispatcher{ring: cp}
}

// Len returns the number of addresses in the ring.
func (d *Dispatcher) Len() int {
	return len(d.ring)
}

// Bin hashes name with a stable, restart-independent 64-bit hash
// (xxhash), rotates the ring to start at that index, and returns a handle
// bound to the bin name and rotated ring.
func (d *Dispatcher) Bin(name string) Handle {
	if len(d.ring) == 0 {
		return Handle{Name: name}
	}
	idx := StableHash(name) % uint64(len(d.ring))
	rotated := make([]string, len(d.ring))
	copy(rotated, d.ring[idx:])
	copy(rotated[len(d.ring)-int(idx):], d.ring[:idx])
	return Handle{Name: name, Ring: rotated, Clock: 0}
}

// StableHash is the concrete non-cryptographic 64-bit hash fixed at
// deployment for this system: deterministic across process restarts,
// which is all the bin dispatcher requires.
func StableHash(name string) uint64 {
	return xxhash.Sum64String(name)
}

// NextLive returns the index of the next live backend strictly after
// from in the ring, wrapping around. Returns -1 if no backend is live.
func NextLive(live []bool, from int) int {
	n := len(live)
	if n == 0 {
		return -1
	}
	for step := 1; step <= n; step++ {
		idx := (from + step) % n
		if live[idx] {
			return idx
		}
	}
	return -1
}

// PrevLive returns the index of the next live backend strictly before
// from in the ring, walking backward and wrapping around. Returns -1 if
// no backend is live.
func PrevLive(live []bool, from int) int {
	n := len(live)
	if n == 0 {
		return -1
	}
	for step := 1; step <= n; step++ {
		idx := ((from-step)%n + n) % n
		if live[idx] {
			return idx
		}
	}
	return -1
}

// KeyPrimaryIdx returns the index of the live backend that is the primary
// for bin under the given live list: hash the bin to a starting index,
// then walk forward to the first live entry, matching the bin dispatcher
// and router's primary-selection rule.
func KeyPrimaryIdx(bin string, ringLen int, live []bool) int {
	if ringLen == 0 {
		return -1
	}
	start := int(StableHash(bin) % uint64(ringLen))
	if start < len(live) && live[start] {
		return start
	}
	return NextLive(live, start)
}

// Package fhkey derives a stable, seeded 64-bit hash from an opaque backend
// file handle and provides the key-equality/clone primitives the rest of
// mdcache builds on.
//
// A key never aliases caller-owned memory: Clone always performs a deep
// copy, so an index entry survives a caller reusing or freeing its handle
// buffer after the call returns.
//
// © 2025 mdcache authors. MIT License.
package fhkey

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

// seed is fixed at package init so that partition/hash assignment is
// reproducible across process restarts and across the reclaimer's for_each
// sweeps in tests. A random per-process seed (as hash/maphash would give)
// would make partition placement untestable.
const seed uint64 = 0x6d64636163686500 // "mdcache\0" read as big-endian bytes

// Key is the opaque identity of a cached backend object: the backend's file
// handle bytes plus the id of the backend that issued them. Two keys compare
// equal iff both the backend id and the handle bytes match exactly.
type Key struct {
	BackendID uint16
	Handle    []byte
	hash      uint64
	valid     bool
}

// New derives a Key from a backend id and handle bytes, computing and
// caching its hash. The handle bytes are cloned; the caller's slice may be
// reused or mutated afterward.
func New(backendID uint16, handle []byte) Key {
	h := make([]byte, len(handle))
	copy(h, handle)
	return Key{
		BackendID: backendID,
		Handle:    h,
		hash:      digest(backendID, h),
		valid:     true,
	}
}

// digest computes the seeded 64-bit hash of (backendID, handle). The
// backend id is folded in as a two-byte prefix so two backends never
// collide on an identical handle byte string.
func digest(backendID uint16, handle []byte) uint64 {
	buf := make([]byte, 2+len(handle))
	buf[0] = byte(backendID)
	buf[1] = byte(backendID >> 8)
	copy(buf[2:], handle)
	return xxhash.Sum64(buf) ^ seed
}

// Hash returns the precomputed 64-bit hash of the key.
func (k Key) Hash() uint64 { return k.hash }

// Partition returns hash mod nPartitions. nPartitions must be > 0; callers
// are expected to validate configuration once at Cache construction time.
func (k Key) Partition(nPartitions int) int {
	return int(k.hash % uint64(nPartitions))
}

// Equal reports whether two keys identify the same backend object: same
// backend id and bitwise-identical handle bytes. The hash is compared first
// as a cheap short-circuit.
func (k Key) Equal(other Key) bool {
	if k.hash != other.hash || k.BackendID != other.BackendID {
		return false
	}
	return bytes.Equal(k.Handle, other.Handle)
}

// Clone returns a deep copy of k; the returned Key shares no backing array
// with k.
func (k Key) Clone() Key {
	h := make([]byte, len(k.Handle))
	copy(h, k.Handle)
	return Key{BackendID: k.BackendID, Handle: h, hash: k.hash, valid: k.valid}
}

// Valid reports whether the key was constructed via New (as opposed to a
// zero Key{}).
func (k Key) Valid() bool { return k.valid }

// Less provides a total order over keys with equal hash (first by backend
// id, then by handle bytes). The index does not call it: colliding keys
// share a bucket that is scanned with Equal. Less is total regardless.
func (k Key) Less(other Key) bool {
	if k.hash != other.hash {
		return k.hash < other.hash
	}
	if k.BackendID != other.BackendID {
		return k.BackendID < other.BackendID
	}
	return bytes.Compare(k.Handle, other.Handle) < 0
}

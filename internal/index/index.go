// Package index implements a partitioned, shard-locked map from backend
// handle key to cache entry, with a per-partition single-slot MRU cache
// updated lock-free via atomic pointer stores.
//
// Grounded on the teacher repo's pkg/shard.go (one RWMutex-guarded
// map[uint64]*entry per shard) generalized from "one map per shard" to an
// explicit latch protocol (get_by_key_latched / set_latched /
// delete_latched), so that a lookup, a miss-triggered backend call, and a
// follow-up insert can be expressed as separate steps without re-deriving
// the partition or re-taking the lock from scratch, and without ever
// holding the partition lock across the backend call.
//
// A genuinely ordered (balanced-tree) map keyed by (hash64, handle bytes)
// has no stdlib or retrieval-pack equivalent; this implementation uses a
// bucket map (map[uint64][]*Entry) with an in-bucket linear scan to break
// hash ties, which is O(1) in practice since 64-bit hash collisions are
// vanishingly rare. This simplification is recorded in DESIGN.md rather
// than silently substituted.
//
// © 2025 mdcache authors. MIT License.
package index

import (
	"sync"
	"sync/atomic"

	"github.com/ganesha-go/mdcache/internal/fhkey"
)

// Entry is the minimal shape the index needs from a cache entry: its key
// (for bucket placement/collision resolution) via its Key method,
// implemented by mdcache.Entry.
type Entry interface {
	Key() fhkey.Key
}

// LockMode selects shared or exclusive acquisition for GetLatched.
type LockMode uint8

const (
	Shared LockMode = iota
	Exclusive
)

// SetResult reports the outcome of SetLatched.
type SetResult int

const (
	Inserted SetResult = iota
	Overwritten
	Exists
)

// partition is one shard of the index: its own rw-lock, bucket map, and a
// single-slot MRU cache addressed by hash mod len(cache).
type partition[E Entry] struct {
	mu      sync.RWMutex
	buckets map[uint64][]E
	cache   []atomic.Pointer[cacheSlot[E]]
}

type cacheSlot[E Entry] struct {
	hash  uint64
	entry E
}

// Latch retains a partition's lock (in the mode it was acquired) across a
// lookup and a follow-up SetLatched/DeleteLatched/ReleaseLatched call. A
// zero Latch is not valid; obtain one from GetLatched.
type Latch[E Entry] struct {
	part    *partition[E]
	mode    LockMode
	held    bool
	hash    uint64
}

// Index is the top-level partitioned structure. Index is generic over the
// concrete entry type so mdcache.Entry never needs to satisfy an any-typed
// interface on the hot path.
type Index[E Entry] struct {
	parts     []*partition[E]
	cacheSize int
}

// New constructs an Index with nPartitions shards, each with a cacheSlots-
// sized MRU array. nPartitions should be a small odd number to spread
// partition-lock contention evenly.
func New[E Entry](nPartitions, cacheSlots int) *Index[E] {
	if nPartitions <= 0 {
		nPartitions = 1
	}
	if cacheSlots <= 0 {
		cacheSlots = 1
	}
	idx := &Index[E]{parts: make([]*partition[E], nPartitions), cacheSize: cacheSlots}
	for i := range idx.parts {
		idx.parts[i] = &partition[E]{
			buckets: make(map[uint64][]E, 64),
			cache:   make([]atomic.Pointer[cacheSlot[E]], cacheSlots),
		}
	}
	return idx
}

func (ix *Index[E]) partitionFor(h uint64) *partition[E] {
	return ix.parts[h%uint64(len(ix.parts))]
}

// GetLatched looks up key, returning the entry if present and a Latch
// retaining the partition lock in the requested mode for a follow-up
// SetLatched/DeleteLatched. The caller MUST eventually call ReleaseLatched
// (directly, or implicitly via SetLatched/DeleteLatched) to avoid
// deadlocking the partition.
func (ix *Index[E]) GetLatched(key fhkey.Key, mode LockMode) (entry E, found bool, latch Latch[E]) {
	h := key.Hash()
	part := ix.partitionFor(h)

	if mode == Shared {
		part.mu.RLock()
	} else {
		part.mu.Lock()
	}
	latch = Latch[E]{part: part, mode: mode, held: true, hash: h}

	if slot := part.cache[h%uint64(ix.cacheSize)].Load(); slot != nil && slot.hash == h {
		if key.Equal(slot.entry.Key()) {
			return slot.entry, true, latch
		}
	}

	for _, e := range part.buckets[h] {
		if key.Equal(e.Key()) {
			part.cache[h%uint64(ix.cacheSize)].Store(&cacheSlot[E]{hash: h, entry: e})
			return e, true, latch
		}
	}

	var zero E
	return zero, false, latch
}

// ReleaseLatched releases a latch obtained from GetLatched without
// performing any mutation. Safe to call on an already-released latch.
func (ix *Index[E]) ReleaseLatched(latch *Latch[E]) {
	if !latch.held {
		return
	}
	if latch.mode == Shared {
		latch.part.mu.RUnlock()
	} else {
		latch.part.mu.Unlock()
	}
	latch.held = false
}

// SetLatched inserts or replaces key->entry under an already-held exclusive
// latch (obtained from GetLatched(..., Exclusive)), updates the MRU slot,
// and releases the latch.
func (ix *Index[E]) SetLatched(latch *Latch[E], key fhkey.Key, entry E, overwrite bool) SetResult {
	defer ix.ReleaseLatched(latch)
	if latch.mode != Exclusive || !latch.held {
		panic("index: SetLatched requires an exclusive, held latch")
	}
	part := latch.part
	h := key.Hash()

	bucket := part.buckets[h]
	for i, e := range bucket {
		if key.Equal(e.Key()) {
			if !overwrite {
				return Exists
			}
			bucket[i] = entry
			part.cache[h%uint64(ix.cacheSize)].Store(&cacheSlot[E]{hash: h, entry: entry})
			return Overwritten
		}
	}
	part.buckets[h] = append(bucket, entry)
	part.cache[h%uint64(ix.cacheSize)].Store(&cacheSlot[E]{hash: h, entry: entry})
	return Inserted
}

// DeleteLatched unlinks entry (matched by key) from the index and
// conservatively clears the MRU slot for key's hash. keepLatch controls
// whether the latch is released before returning (callers that need to do
// further work under the same exclusive section pass true and release it
// themselves via ReleaseLatched).
func (ix *Index[E]) DeleteLatched(latch *Latch[E], key fhkey.Key, keepLatch bool) bool {
	if !keepLatch {
		defer ix.ReleaseLatched(latch)
	}
	if latch.mode != Exclusive || !latch.held {
		panic("index: DeleteLatched requires an exclusive, held latch")
	}
	part := latch.part
	h := key.Hash()

	bucket := part.buckets[h]
	for i, e := range bucket {
		if key.Equal(e.Key()) {
			bucket = append(bucket[:i], bucket[i+1:]...)
			part.buckets[h] = bucket
			// Conservative: clear rather than try to prove the slot
			// doesn't alias another key at the same mod position.
			part.cache[h%uint64(ix.cacheSize)].Store(nil)
			return true
		}
	}
	return false
}

// ForEach invokes cb for every entry in every partition, holding each
// partition's lock in shared mode for the duration of that partition's
// callback sequence. cb must not call back into the Index.
func (ix *Index[E]) ForEach(cb func(E)) {
	for _, part := range ix.parts {
		part.mu.RLock()
		for _, bucket := range part.buckets {
			for _, e := range bucket {
				cb(e)
			}
		}
		part.mu.RUnlock()
	}
}

// ForEachUnsafe iterates every entry without taking any lock. It exists
// solely for the shutdown-only destroy path: a worker goroutine may have
// been cancelled while holding a partition lock,
// so taking that lock here would deadlock. Precondition: the caller has
// already stopped (and drained or force-cancelled) every other goroutine
// that could touch the index. Using this while request goroutines are
// still running is a data race by construction.
func (ix *Index[E]) ForEachUnsafe(cb func(E)) {
	for _, part := range ix.parts {
		for _, bucket := range part.buckets {
			for _, e := range bucket {
				cb(e)
			}
		}
	}
}

// Len returns the approximate total entry count across all partitions.
// Racy with concurrent mutation; intended for metrics/diagnostics only.
func (ix *Index[E]) Len() int {
	n := 0
	for _, part := range ix.parts {
		part.mu.RLock()
		for _, bucket := range part.buckets {
			n += len(bucket)
		}
		part.mu.RUnlock()
	}
	return n
}

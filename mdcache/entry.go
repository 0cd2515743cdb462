package mdcache

import (
	"sync/atomic"
	"time"

	"github.com/ganesha-go/mdcache/internal/dirent"
	"github.com/ganesha-go/mdcache/internal/entrypool"
	"github.com/ganesha-go/mdcache/internal/fhkey"
	"github.com/ganesha-go/mdcache/internal/lru"
)

// flagBits holds the per-entry trust/population bits: whether the cached
// attributes are authoritative, whether a directory's content is
// authoritative, and whether a directory has been fully enumerated once.
type flagBits uint32

const (
	flagTrustAttrs flagBits = 1 << iota
	flagTrustContent
	flagDirPopulated
)

// fileState is the per-regular-file variant data: descriptor status and
// per-mode open counters.
type fileState struct {
	desc       DescStatus
	openReadN  int32
	openWriteN int32
}

// dirState is the per-directory variant data: the name/cookie substructure,
// an active-child count, junction marking, and the in-creation counter.
// (The cached parent key lives on Entry itself.)
type dirState struct {
	tree           *dirent.Directory
	activeChildren int32
	junction       bool
	inCreation     atomic.Int32
}

// symlinkState is the per-symlink variant data: a lazily-fetched, cached
// target.
type symlinkState struct {
	target []byte
}

// Entry is a cache record for one backend object. It embeds
// the three per-entry rw-locks (internal/entrypool.Locks, in their required
// acquisition order: state, then content, then attr) and holds a pointer to
// its LRU/refcount bookkeeping node (internal/lru.Node), assigned by
// allocEntry. The embedded locks are zero-value usable, matching
// entrypool.Pool's recycling contract.
type Entry struct {
	entrypool.Locks

	cache *Cache
	node  *lru.Node

	key    fhkey.Key
	typ    FileType
	handle Handle // nil once the entry is torn down

	flags  atomic.Uint32
	attrs  Attrs
	expiry time.Time // guarded by Attr lock

	parentKey    fhkey.Key
	hasParentKey bool
	isExportRoot bool

	file    fileState
	dir     dirState
	symlink symlinkState
}

// Key implements internal/index.Entry.
func (e *Entry) Key() fhkey.Key { return e.key }

// Type reports the entry's backend object type.
func (e *Entry) Type() FileType { return e.typ }

// Attrs returns a snapshot of the cached attributes. Callers wanting a
// trust-checked read should go through Cache.GetAttrs instead.
func (e *Entry) Attrs() Attrs {
	e.Attr.RLock()
	defer e.Attr.RUnlock()
	return e.attrs
}

func (e *Entry) hasFlag(b flagBits) bool {
	return flagBits(e.flags.Load())&b != 0
}

func (e *Entry) setFlag(b flagBits) {
	for {
		old := e.flags.Load()
		if flagBits(old)&b != 0 {
			return
		}
		if e.flags.CompareAndSwap(old, old|uint32(b)) {
			return
		}
	}
}

func (e *Entry) clearFlag(b flagBits) {
	for {
		old := e.flags.Load()
		if flagBits(old)&b == 0 {
			return
		}
		if e.flags.CompareAndSwap(old, old&^uint32(b)) {
			return
		}
	}
}

// trustAttrsValid reports whether the cached attributes are currently
// authoritative: the trust-attrs bit is set and the expiry deadline has
// not passed. Caller must hold at least Attr.RLock.
func (e *Entry) trustAttrsValid(now time.Time) bool {
	return e.hasFlag(flagTrustAttrs) && now.Before(e.expiry)
}

// trustContentPopulated reports whether the directory's name map is
// authoritative: both the trust-content and populated bits are set.
// Caller must hold at least Content.RLock.
func (e *Entry) trustContentPopulated() bool {
	return e.hasFlag(flagTrustContent) && e.hasFlag(flagDirPopulated)
}

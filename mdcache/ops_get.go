// ops_get.go implements the get/get_by_key/get_protected trio: resolve
// via the index first, and only fall back to the backend (and a
// singleflight-collapsed insert) on a genuine miss.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/ganesha-go/mdcache/internal/fhkey"
	"github.com/ganesha-go/mdcache/internal/index"
	"github.com/ganesha-go/mdcache/internal/mderr"
)

// GetFlags narrows a lookup's willingness to fall back to the backend.
type GetFlags uint8

const (
	// GetOrCreate (the default) calls the backend and installs a new
	// entry on a cache miss.
	GetOrCreate GetFlags = iota
	// CachedOnly returns mderr.NotFound on a cache miss without ever
	// calling the backend.
	CachedOnly
)

// Get resolves key to a reference-counted entry, creating one via the
// backend on a cache miss unless flags is CachedOnly. The caller owns the
// returned reference and must call Put when done with it.
func (c *Cache) Get(ctx context.Context, key fhkey.Key, flags GetFlags) (*Entry, error) {
	ctx = ctxOrBackground(ctx)

	if e, found, latch := c.idx.GetLatched(key, index.Shared); found {
		c.idx.ReleaseLatched(&latch)
		if err := c.lruM.RefInitial(e.node); err != nil {
			// Raced with Kill between the index lookup and taking a
			// reference: treat exactly like a miss.
		} else {
			c.metrics.incHit()
			return e, nil
		}
	}

	c.metrics.incMiss()
	if flags == CachedOnly {
		return nil, mderr.New(mderr.NotFound, fmt.Sprintf("backend=%d", key.BackendID))
	}

	v, err, _ := c.sf.Do(singleflightKey(key), func() (any, error) {
		return c.getOrInsert(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	entry := v.(*Entry)
	if err := c.lruM.RefInitial(entry.node); err != nil {
		// The singleflight winner's entry was killed between insertion
		// and this caller taking its own reference; retry once.
		v, err, _ = c.sf.Do(singleflightKey(key), func() (any, error) {
			return c.getOrInsert(ctx, key)
		})
		if err != nil {
			return nil, err
		}
		entry = v.(*Entry)
		if err := c.lruM.RefInitial(entry.node); err != nil {
			return nil, mderr.New(mderr.Dead, "get race")
		}
	}
	return entry, nil
}

// getOrInsert is the singleflight-collapsed miss path: it does not itself
// take the caller's reference (the Track sentinel reference is enough to
// keep the entry alive until the caller's RefInitial above), so concurrent
// callers racing the same key all observe the same *Entry.
func (c *Cache) getOrInsert(ctx context.Context, key fhkey.Key) (*Entry, error) {
	if e, found, latch := c.idx.GetLatched(key, index.Shared); found {
		c.idx.ReleaseLatched(&latch)
		return e, nil
	}

	h, err := c.backend.CreateHandle(ctx, key.Handle)
	if err != nil {
		return nil, mderr.Wrap(mderr.NotFound, err, "create_handle")
	}
	return c.installHandle(ctx, key, h)
}

// installHandle derives the backend's authoritative type/attrs for a fresh
// handle and inserts it into the index, or discards the handle and returns
// the already-installed entry if another goroutine won the race between
// CreateHandle and the exclusive insert.
func (c *Cache) installHandle(ctx context.Context, key fhkey.Key, h Handle) (*Entry, error) {
	attrs, err := c.backend.GetAttrs(ctx, h)
	if err != nil {
		_ = c.backend.Release(ctx, h)
		return nil, translateErr(err)
	}

	if c.lruM.EntryCount() > c.cfg.EntriesHWMark {
		c.reapOverflow()
	}
	typ := fileTypeFromMode(attrs.Mode)
	entry := c.allocEntry(key, typ, h)
	entry.Attr.Lock()
	entry.attrs = attrs
	entry.expiry = c.deadline()
	entry.setFlag(flagTrustAttrs)
	entry.Attr.Unlock()

	_, found, latch := c.idx.GetLatched(key, index.Exclusive)
	if found {
		c.idx.ReleaseLatched(&latch)
		// Lost the race: release the handle we just created and the
		// record we just allocated; return the winner's entry instead.
		c.lruM.Forget(entry.node)
		_ = c.backend.Release(ctx, h)
		c.releaseEntryToPool(entry)
		existing, stillFound, latch2 := c.idx.GetLatched(key, index.Shared)
		c.idx.ReleaseLatched(&latch2)
		if !stillFound {
			return nil, mderr.New(mderr.NotFound, "race")
		}
		return existing, nil
	}
	c.idx.SetLatched(&latch, key, entry, false)
	c.metrics.setEntryCount(c.lruM.EntryCount())
	return entry, nil
}

// getProtected safely upgrades a raw *Entry obtained while holding
// sourceLock to a counted reference: it calls getter and clones the key
// under sourceLock, then re-resolves through the index rather than
// trusting the raw pointer directly, because the entry may be killed and
// recycled once sourceLock is released.
func (c *Cache) getProtected(sourceLock sync.Locker, getter func() *Entry) (*Entry, error) {
	sourceLock.Lock()
	raw := getter()
	var key fhkey.Key
	if raw != nil {
		key = raw.key.Clone()
	}
	sourceLock.Unlock()
	if raw == nil {
		return nil, mderr.New(mderr.NotFound, "get_protected")
	}
	return c.Get(context.Background(), key, CachedOnly)
}

// Put releases the caller's reference on e, obtained from Get, Lookup,
// Create, or any other high-level operation.
func (c *Cache) Put(e *Entry) { c.put(e) }

func translateErr(err error) error {
	_, wrapped := translateBackendError(err)
	return wrapped
}

func fileTypeFromMode(mode uint32) FileType {
	const sIFMT = 0o170000
	switch mode & sIFMT {
	case 0o040000:
		return Directory
	case 0o100000:
		return RegularFile
	case 0o120000:
		return Symlink
	case 0o140000:
		return Socket
	case 0o010000:
		return Fifo
	case 0o020000:
		return CharDev
	case 0o060000:
		return BlockDev
	default:
		return Unknown
	}
}

func singleflightKey(key fhkey.Key) string {
	return fmt.Sprintf("%d:%x", key.BackendID, key.Handle)
}

// lifecycle.go implements attribute trust refresh, the kill policy, and
// the two-phase teardown run when an entry's last reference drops.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ganesha-go/mdcache/internal/index"
	"github.com/ganesha-go/mdcache/internal/mderr"
)

// refreshAttrsLocked calls the backend to refresh e's cached attributes and
// resets the expiry deadline. Caller must hold Attr.Lock (exclusive).
func (c *Cache) refreshAttrsLocked(ctx context.Context, e *Entry) error {
	attrs, err := c.backend.GetAttrs(ctx, e.handle)
	if err != nil {
		return c.translateAndMaybeKill(ctx, e, err)
	}
	dirMTimeAdvanced := e.typ == Directory && attrs.Mtime > e.attrs.Mtime
	e.attrs = attrs
	e.expiry = timeNow().Add(c.cfg.ExpireTimeAttr)
	e.setFlag(flagTrustAttrs)

	if dirMTimeAdvanced {
		e.Content.Lock()
		e.clearFlag(flagTrustContent)
		e.clearFlag(flagDirPopulated)
		e.Content.Unlock()
	}
	return nil
}

// lockTrustAttrs acquires Attr in mode, and if the cached attributes are
// not currently trusted, upgrades to exclusive, re-checks (another
// goroutine may have refreshed while we waited), and refreshes via the
// backend if still needed. It returns with Attr held in exactly the mode
// requested by the caller — callers that asked for RLock and triggered a
// refresh are transparently downgraded back to RLock before return.
//
// Centralizing the lock-shared/check-trust/upgrade-if-stale/re-check
// sequence here avoids duplicating it at every call site that needs
// trusted attributes.
func (c *Cache) lockTrustAttrs(ctx context.Context, e *Entry, mode lockMode) error {
	if mode == lockShared {
		e.Attr.RLock()
		if e.trustAttrsValid(timeNow()) {
			return nil
		}
		e.Attr.RUnlock()
	}

	e.Attr.Lock()
	if !e.trustAttrsValid(timeNow()) {
		if err := c.refreshAttrsLocked(ctx, e); err != nil {
			e.Attr.Unlock()
			return err
		}
	}
	if mode == lockShared {
		e.Attr.Unlock()
		e.Attr.RLock()
		return nil
	}
	return nil
}

type lockMode uint8

const (
	lockShared lockMode = iota
	lockExclusive
)

// translateAndMaybeKill maps a raw backend error onto the mderr taxonomy
// and, for a stale handle, additionally triggers kill(e): the backend's
// "stale handle" error at any operation triggers the entry's kill policy.
func (c *Cache) translateAndMaybeKill(ctx context.Context, e *Entry, err error) error {
	code, wrapped := translateBackendError(err)
	if code == mderr.Stale {
		c.metrics.incStale()
		c.log.Info("backend reports stale handle, killing entry", zap.Uint16("backend", e.key.BackendID))
		c.kill(ctx, e)
	}
	return wrapped
}

// kill marks e unreachable: removes it from the index (so future lookups
// miss), pushes it onto the LRU cleanup queue for deferred teardown, and
// drops the index's sentinel reference. Already-held references remain
// valid; the entry is freed only when the last one drops. Idempotent.
func (c *Cache) kill(ctx context.Context, e *Entry) {
	existing, found, latch := c.idx.GetLatched(e.key, index.Exclusive)
	inIndex := found && existing == e
	if inIndex {
		c.idx.DeleteLatched(&latch, e.key, false)
	} else {
		c.idx.ReleaseLatched(&latch)
	}
	c.lruM.Kill(e.node)
	if inIndex && c.lruM.Unref(e.node) {
		c.tearDownAndFree(e)
	}
}

// tearDownAndFree runs once an entry has no references left (its last
// Unref, the index sentinel included, or reapOverflow condemning it):
// two-phase external-state teardown, backend handle release, and return
// of the record to the pool.
//
// Teardown is split into two explicit phases — layouts/byte-range locks,
// then share reservations — rather than a single fallthrough switch, so
// a collaborator can be wired into either phase independently.
func (c *Cache) tearDownAndFree(e *Entry) {
	c.tearDownLayoutsAndLocks(e)
	c.tearDownShares(e)

	if e.handle != nil {
		_ = c.backend.Release(context.Background(), e.handle)
		e.handle = nil
	}
	c.releaseEntryToPool(e)
}

// tearDownLayoutsAndLocks is phase 1 of the two-phase state teardown. The
// state/locking subsystem itself is an external collaborator; this is the
// hook point it would register cleanup against. With no collaborator
// wired in this library, it is a documented no-op extension point.
func (c *Cache) tearDownLayoutsAndLocks(e *Entry) {
	e.State.Lock()
	defer e.State.Unlock()
	// No-op: pNFS layouts and byte-range locks are owned by the
	// state/locking subsystem, out of scope here. This phase exists so a
	// collaborator can be wired in without touching the surrounding
	// teardown order.
}

// tearDownShares is phase 2 of the two-phase state teardown (see
// tearDownLayoutsAndLocks).
func (c *Cache) tearDownShares(e *Entry) {
	e.State.Lock()
	defer e.State.Unlock()
	// No-op: share reservations are owned by the state/locking
	// subsystem, out of scope here.
}

// deadline computes an attribute expiry deadline using the configured TTL.
func (c *Cache) deadline() time.Time { return timeNow().Add(c.cfg.ExpireTimeAttr) }

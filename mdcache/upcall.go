// upcall.go implements the backend-initiated invalidation channel:
// invalidations are queued onto a buffered channel and applied by a
// dedicated goroutine, keeping the backend's calling goroutine (e.g. an
// inotify watcher) from ever blocking on cache-internal locks.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"github.com/ganesha-go/mdcache/internal/fhkey"
	"github.com/ganesha-go/mdcache/internal/index"
)

// InvalidateWhich selects which facet of a cached entry an upcall
// invalidates: its attributes, its content, or both.
type InvalidateWhich uint8

const (
	InvalidateAttrs InvalidateWhich = 1 << iota
	InvalidateContent
	InvalidateAll = InvalidateAttrs | InvalidateContent
)

type upcallRequest struct {
	key   fhkey.Key
	which InvalidateWhich
}

// UpcallInvalidate queues an out-of-band invalidation for the entry keyed
// by key, to be applied asynchronously. Safe to call from any goroutine,
// including a backend's own notification thread. A key with no cached
// entry is silently ignored once the request is processed.
func (c *Cache) UpcallInvalidate(key fhkey.Key, which InvalidateWhich) {
	if c.shutdown.Load() {
		return
	}
	select {
	case c.upcallCh <- upcallRequest{key: key, which: which}:
	default:
		// Channel full under sustained upcall pressure: drop rather than
		// block the caller. A dropped invalidation is recovered at worst
		// by the entry's normal attribute TTL expiry.
		c.log.Warn("upcall queue full, dropping invalidation")
	}
}

// upcallLoop drains upcallCh and applies each invalidation by clearing the
// relevant trust bits under the entry's own locks, exactly as a normal
// operation would after detecting staleness.
func (c *Cache) upcallLoop() {
	for req := range c.upcallCh {
		c.applyUpcall(req)
	}
}

func (c *Cache) applyUpcall(req upcallRequest) {
	entry, found, latch := c.idx.GetLatched(req.key, index.Shared)
	c.idx.ReleaseLatched(&latch)
	if !found {
		return
	}

	if req.which&InvalidateAttrs != 0 {
		entry.Attr.Lock()
		entry.clearFlag(flagTrustAttrs)
		entry.Attr.Unlock()
	}
	if req.which&InvalidateContent != 0 {
		entry.Content.Lock()
		entry.clearFlag(flagTrustContent)
		entry.clearFlag(flagDirPopulated)
		entry.Content.Unlock()
	}
}

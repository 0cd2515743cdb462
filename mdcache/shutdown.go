// shutdown.go implements Cache.Shutdown: stopping the background
// goroutines and running a lock-free destroy path, since no request
// goroutine is guaranteed to have unwound cleanly by the time shutdown
// begins.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"context"
	"time"
)

// Shutdown stops the reclaimer and upcall goroutines and releases every
// backend handle still held by the cache. It is safe to call exactly once;
// subsequent calls are no-ops. After Shutdown returns, the Cache must not
// be used again.
//
// Shutdown waits up to drainTimeout for the reclaimer to notice the stop
// signal before proceeding regardless: a worker goroutine wedged on a
// backend call is something shutdown must tolerate, not wait on forever.
func (c *Cache) Shutdown(drainTimeout time.Duration) {
	c.shutOnce.Do(func() {
		c.shutdown.Store(true)
		close(c.reclaimStop)

		select {
		case <-c.reclaimDone:
		case <-time.After(drainTimeout):
		}
		close(c.upcallCh)

		// ForEachUnsafe: no goroutine we didn't just stop (or bound by
		// drainTimeout) can still be touching the index, so the
		// unlocked destroy path is safe here specifically.
		c.idx.ForEachUnsafe(func(e *Entry) {
			if e.handle != nil {
				_ = c.backend.Release(context.Background(), e.handle)
				e.handle = nil
			}
		})

		if c.spill != nil {
			_ = c.spill.Close()
		}
	})
}

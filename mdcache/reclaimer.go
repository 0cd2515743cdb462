// reclaimer.go runs the background descriptor reclaimer goroutine: a
// multi-queue demotion pass over every LRU lane plus adaptive sleep and
// futility tracking. Grounded on the teacher's reclaimer loop shape (a
// ticker-or-adaptive-sleep loop calling one ReclaimPass per wake)
// generalized from byte-cache eviction to backend descriptor demotion.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ganesha-go/mdcache/internal/index"
	"github.com/ganesha-go/mdcache/internal/lru"
)

// reclaimLoop wakes on an adaptive interval — faster as open descriptors
// approach the high watermark, proportional to how quickly they're
// growing — and runs one demotion pass per wake. It exits when
// reclaimStop is closed, signalling exit on reclaimDone.
func (c *Cache) reclaimLoop() {
	defer close(c.reclaimDone)

	for {
		prev := c.sleepPrev.Load().(lru.SleepSample)
		cur := lru.SleepSample{OpenFDs: c.openFDs.Load(), At: timeNow()}
		c.sleepPrev.Store(cur)

		sleep := lru.AdaptiveSleep(cur, prev, c.loWaterFDs, c.hiWaterFDs, c.cfg.LRURunInterval)

		select {
		case <-c.reclaimStop:
			return
		case <-time.After(sleep):
		}

		c.runReclaimPass()
	}
}

// runReclaimPass performs one demotion sweep plus a capacity-driven reap,
// and updates the futility counter that gates whether the cache keeps
// caching descriptors past use at all.
func (c *Cache) runReclaimPass() {
	demoted := c.lruM.ReclaimPass(c.cfg.ReaperWork, c.closeDescriptorFor)
	c.metrics.incReclaim(demoted)
	c.metrics.setOpenFDs(c.openFDs.Load())
	c.metrics.setEntryCount(c.lruM.EntryCount())

	required := int(float64(c.cfg.ReaperWork*c.lruM.NumLanes()) * c.cfg.RequiredProgress)
	if demoted < required {
		n := c.futility.Add(1)
		c.metrics.setFutility(int64(n))
		if int(n) >= c.cfg.FutilityCount {
			// Sustained futile passes: the backend is not giving back
			// descriptors fast enough, so stop caching them past use
			// until pressure relieves.
			if c.cachingFDs.Load() {
				c.log.Error("reclaimer futility lockout, disabling descriptor caching", zap.Int("futility", int(n)))
			}
			c.cachingFDs.Store(false)
		}
	} else {
		c.futility.Store(0)
		c.metrics.setFutility(0)
		if c.cfg.UseFDCache {
			c.cachingFDs.Store(true)
		}
	}

	if c.lruM.EntryCount() > c.cfg.EntriesHWMark {
		c.reapOverflow()
	}
}

// closeDescriptorFor is the ReclaimPass closeFn: it takes the entry's
// content lock, closes any backend descriptor held open purely for
// reuse, and reports whether one was actually closed. Invoked with no
// lane lock held.
func (c *Cache) closeDescriptorFor(owner any) bool {
	e, ok := owner.(*Entry)
	if !ok || e.typ != RegularFile {
		return false
	}
	e.Content.Lock()
	defer e.Content.Unlock()

	if e.file.desc == DescClosed {
		return false
	}
	if err := c.backend.Close(context.Background(), e.handle); err != nil {
		return false
	}
	e.file.desc = DescClosed
	c.openFDs.Add(-1)
	return true
}

// reapOverflow evicts at most one genuinely unreferenced entry per call;
// its callers invoke it when the entry count is over the configured high
// watermark. It tries each lane once, starting from the lane indexed by
// the current futility count, and returns after the first eviction.
func (c *Cache) reapOverflow() {
	n := c.lruM.NumLanes()
	for i := 0; i < n; i++ {
		lanePick := int(c.futility.Load()) + i
		node := c.lruM.ReapCandidate(lanePick)
		if node == nil {
			continue
		}
		e, ok := node.Owner.(*Entry)
		if !ok {
			continue
		}
		_, found, latch := c.idx.GetLatched(e.key, index.Exclusive)
		if !found {
			c.idx.ReleaseLatched(&latch)
			continue
		}
		if !c.lruM.TryCondemn(node) {
			c.idx.ReleaseLatched(&latch)
			continue
		}
		c.idx.DeleteLatched(&latch, e.key, false)
		c.metrics.incEvict()
		c.tearDownAndFree(e)
		return
	}
}

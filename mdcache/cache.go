// cache.go: the top-level Cache type wiring together the partitioned index
// (internal/index), the LRU reclaimer (internal/lru), the entry pool
// (internal/entrypool), and the backend. Construction follows the teacher
// repo's pkg/cache.go New() shape: validate, build a Config via
// defaultConfig+applyOptions, then construct the subordinate structures.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ganesha-go/mdcache/internal/dirent"
	"github.com/ganesha-go/mdcache/internal/entrypool"
	"github.com/ganesha-go/mdcache/internal/fhkey"
	"github.com/ganesha-go/mdcache/internal/index"
	"github.com/ganesha-go/mdcache/internal/lru"
	"github.com/ganesha-go/mdcache/internal/mderr"
	"github.com/ganesha-go/mdcache/internal/rlimit"
	"github.com/ganesha-go/mdcache/internal/spill"
)

// Cache is the metadata and file-descriptor cache core. It is safe for
// concurrent use by many request goroutines plus its own background
// reclaimer goroutine.
type Cache struct {
	cfg     Config
	backend Backend
	log     *zap.Logger
	metrics metricsSink

	idx  *index.Index[*Entry]
	pool *entrypool.Pool[Entry]
	lruM *lru.Manager

	sf singleflight.Group

	openFDs    atomic.Int64
	cachingFDs atomic.Bool
	futility   atomic.Int32

	sleepPrev atomic.Value // lru.SleepSample

	spill *spill.Store

	upcallCh chan upcallRequest

	reclaimStop chan struct{}
	reclaimDone chan struct{}
	shutOnce    sync.Once
	shutdown    atomic.Bool

	hardFDLimit int64
	hiWaterFDs  int64
	loWaterFDs  int64
}

// New constructs a Cache backed by backend with the given options applied
// over the documented defaults.
func New(backend Backend, opts ...Option) (*Cache, error) {
	if backend == nil {
		return nil, mderr.New(mderr.InitFailed, "nil backend")
	}
	cfg := defaultConfig()
	if err := applyOptions(cfg, opts); err != nil {
		return nil, err
	}

	c := &Cache{
		cfg:      *cfg,
		backend:  backend,
		log:      cfg.Logger,
		metrics:  newMetricsSink(cfg.Registry),
		idx:      index.New[*Entry](cfg.NParts, cfg.CacheSlots),
		lruM:     lru.NewManager(cfg.Lanes),
		upcallCh: make(chan upcallRequest, 256),
		reclaimStop: make(chan struct{}),
		reclaimDone: make(chan struct{}),
	}
	c.pool = entrypool.New(func() *Entry {
		return &Entry{cache: c}
	}, resetEntry)
	c.cachingFDs.Store(cfg.UseFDCache)
	c.sleepPrev.Store(lru.SleepSample{At: timeNow()})

	hard, hi, lo := rlimit.Watermarks(cfg.FDHWMarkPercent, cfg.FDLWMarkPercent, cfg.FDLimitPercent, cfg.FallbackFDSoftLimit)
	c.hardFDLimit, c.hiWaterFDs, c.loWaterFDs = hard, hi, lo

	if cfg.SpillDir != "" {
		st, err := spill.Open(cfg.SpillDir)
		if err != nil {
			return nil, mderr.Wrap(mderr.InitFailed, err, "spill open")
		}
		c.spill = st
	}

	go c.reclaimLoop()
	go c.upcallLoop()

	return c, nil
}

// timeNow is indirected so tests can fake the clock without a dependency
// injection parameter on every call site.
var timeNow = time.Now

func resetEntry(e *Entry) {
	e.node = nil
	e.key = fhkey.Key{}
	e.typ = Unknown
	e.handle = nil
	e.flags.Store(0)
	e.attrs = Attrs{}
	e.expiry = time.Time{}
	e.parentKey = fhkey.Key{}
	e.hasParentKey = false
	e.isExportRoot = false
	e.file = fileState{}
	e.dir = dirState{}
	e.symlink = symlinkState{}
}

// allocEntry draws a fresh (or recycled) Entry record from the pool,
// assigns it key/type, and registers it with the LRU manager at refcnt=1
// (the index sentinel reference). The entry is NOT yet inserted into the
// index — callers do that under an exclusive latch immediately after.
func (c *Cache) allocEntry(key fhkey.Key, typ FileType, h Handle) *Entry {
	e := c.pool.Get()
	e.key = key
	e.typ = typ
	e.handle = h
	e.node = c.lruM.Track(e)
	if typ == Directory {
		e.dir.tree = dirent.New(c.cfg.MaxDeletedCookies)
	}
	return e
}

// releaseEntryToPool returns an entry's record to the pool once its last
// reference has dropped and any external state has been torn down. Callers
// must have already confirmed lru.Manager.Unref returned freed=true.
func (c *Cache) releaseEntryToPool(e *Entry) {
	c.pool.Put(e)
}

// EntryCount returns the number of entries the LRU manager currently
// tracks: those reachable from the index plus killed entries whose last
// reference has not yet dropped.
func (c *Cache) EntryCount() int64 { return c.lruM.EntryCount() }

// OpenFDs returns the process-wide count of backend descriptors the cache
// currently believes are open.
func (c *Cache) OpenFDs() int64 { return c.openFDs.Load() }

// CachingFDs reports whether the reclaimer currently permits holding
// descriptors open past use (it may be temporarily disabled under
// sustained backpressure via the futility lockout).
func (c *Cache) CachingFDs() bool { return c.cachingFDs.Load() }

// Backend returns the backend this cache delegates to.
func (c *Cache) Backend() Backend { return c.backend }

// put releases the caller's reference on entry, obtained from any
// high-level operation. If this was the last reference, the entry's
// external state is torn down and its record recycled.
func (c *Cache) put(e *Entry) {
	if e == nil {
		return
	}
	if c.lruM.Unref(e.node) {
		c.tearDownAndFree(e)
	}
}

// ctxOrBackground returns ctx, substituting context.Background() if nil —
// several internal call sites (e.g. reclaimer-driven descriptor closes)
// have no natural request context to thread through.
func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// config.go: the Config object and functional Options, following the
// teacher repo's pkg/config.go defaultConfig/applyOptions shape but
// monomorphic rather than generic over K,V — mdcache's entries are a fixed
// record shape, not a user type parameter (see DESIGN.md).
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config bundles every tunable the cache core exposes — index shape,
// LRU lane/reclaim behavior, descriptor watermarks, TTLs — plus the
// ambient options (logger, metrics registry, spill directory). All
// fields are immutable once a Cache is constructed.
type Config struct {
	NParts      int // index partitions
	CacheSlots  int // MRU slots per partition
	Lanes       int // LRU lanes; 0 derives the smallest odd number >= NParts (not necessarily prime)

	EntriesHWMark int64 // entry-count high water; triggers reap() on miss

	FDHWMarkPercent float64
	FDLWMarkPercent float64
	FDLimitPercent  float64
	UseFDCache      bool

	ReaperWork       int // per_lane_work: entries scanned per lane per pass
	BiggestWindow    int // stored only; the reclaimer runs exactly one pass per wake and never reads it
	RequiredProgress float64
	FutilityCount    int

	LRURunInterval time.Duration
	RetryReaddir   bool
	ExpireTimeAttr time.Duration

	MaxDeletedCookies int  // soft cap on a directory's deleted-cookie set
	CloseBeforeUnlink bool // guard against silly-rename platforms

	// Ambient / operational knobs.
	Registry *prometheus.Registry // nil disables metrics
	Logger   *zap.Logger          // nil becomes zap.NewNop()
	SpillDir string               // non-empty opens a badger spill store, closed on Shutdown; directory population neither reads nor writes it

	// FallbackFDSoftLimit is used only when the process's RLIMIT_NOFILE
	// cannot be read (e.g. a restricted sandbox), so fd watermark
	// derivation stays deterministic in tests.
	FallbackFDSoftLimit uint64
}

// Option mutates a Config during New.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		NParts:              7,
		CacheSlots:          32,
		Lanes:               0,
		EntriesHWMark:       100_000,
		FDHWMarkPercent:     0.9,
		FDLWMarkPercent:     0.6,
		FDLimitPercent:      0.99,
		UseFDCache:          true,
		ReaperWork:          64,
		BiggestWindow:       1024,
		RequiredProgress:    0.1,
		FutilityCount:       8,
		LRURunInterval:      90 * time.Second,
		RetryReaddir:        false,
		ExpireTimeAttr:      60 * time.Second,
		MaxDeletedCookies:   65535,
		CloseBeforeUnlink:   true,
		Logger:              zap.NewNop(),
		FallbackFDSoftLimit: 1024,
	}
}

// WithPartitions sets the index partition count.
func WithPartitions(n int) Option { return func(c *Config) { c.NParts = n } }

// WithCacheSlots sets the per-partition MRU slot count.
func WithCacheSlots(n int) Option { return func(c *Config) { c.CacheSlots = n } }

// WithLanes sets the LRU lane count. 0 (default) derives one from NParts.
func WithLanes(n int) Option { return func(c *Config) { c.Lanes = n } }

// WithEntriesHighWater sets the entry-count high water mark.
func WithEntriesHighWater(n int64) Option { return func(c *Config) { c.EntriesHWMark = n } }

// WithFDWatermarks sets the descriptor high/low/hard-limit fractions of the
// process's RLIMIT_NOFILE.
func WithFDWatermarks(hi, lo, limit float64) Option {
	return func(c *Config) {
		c.FDHWMarkPercent = hi
		c.FDLWMarkPercent = lo
		c.FDLimitPercent = limit
	}
}

// WithFDCache enables or disables holding descriptors open past use.
func WithFDCache(enabled bool) Option { return func(c *Config) { c.UseFDCache = enabled } }

// WithReclaimWork sets ReaperWork, the per-lane work of each reclaimer
// pass, and BiggestWindow. The reclaimer runs one pass per wake and does
// not read BiggestWindow.
func WithReclaimWork(perLane, biggestWindow int) Option {
	return func(c *Config) {
		c.ReaperWork = perLane
		c.BiggestWindow = biggestWindow
	}
}

// WithFutility sets the required-progress fraction and the consecutive
// futile-pass count before descriptor caching is disabled.
func WithFutility(requiredProgress float64, count int) Option {
	return func(c *Config) {
		c.RequiredProgress = requiredProgress
		c.FutilityCount = count
	}
}

// WithReclaimInterval sets the reclaimer's base sleep interval.
func WithReclaimInterval(d time.Duration) Option { return func(c *Config) { c.LRURunInterval = d } }

// WithRetryReaddir makes a short readdir surface a retry error instead of
// marking the directory populated.
func WithRetryReaddir(retry bool) Option { return func(c *Config) { c.RetryReaddir = retry } }

// WithAttrTTL sets the default attribute expiry duration.
func WithAttrTTL(d time.Duration) Option { return func(c *Config) { c.ExpireTimeAttr = d } }

// WithMaxDeletedCookies sets the soft cap on a directory's deleted-cookie
// retention set.
func WithMaxDeletedCookies(n int) Option { return func(c *Config) { c.MaxDeletedCookies = n } }

// WithCloseBeforeUnlink toggles the "close an open target before unlink"
// guard used on platforms whose backend would otherwise silly-rename.
func WithCloseBeforeUnlink(enabled bool) Option {
	return func(c *Config) { c.CloseBeforeUnlink = enabled }
}

// WithMetrics enables Prometheus metrics collection, following the
// teacher's pkg/metrics.go convention: passing nil disables metrics.
func WithMetrics(reg *prometheus.Registry) Option { return func(c *Config) { c.Registry = reg } }

// WithLogger plugs an external zap.Logger. The cache never logs on the hot
// path; only stale-handle kills (Info), upcalls dropped on a full queue
// (Warn), and the reclaimer's futility lockout (Error) are logged.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithSpill makes New open a badger-backed spill store rooted at dir, which
// Shutdown closes. Directory population neither reads nor writes the
// store. Disabled (the default) opens no store at all.
func WithSpill(dir string) Option { return func(c *Config) { c.SpillDir = dir } }

var (
	errInvalidParts  = errors.New("mdcache: NParts must be > 0")
	errInvalidSlots  = errors.New("mdcache: CacheSlots must be > 0")
	errInvalidHWMark = errors.New("mdcache: EntriesHWMark must be > 0")
)

func applyOptions(cfg *Config, opts []Option) error {
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.NParts <= 0 {
		return errInvalidParts
	}
	if cfg.CacheSlots <= 0 {
		return errInvalidSlots
	}
	if cfg.EntriesHWMark <= 0 {
		return errInvalidHWMark
	}
	if cfg.Lanes <= 0 {
		cfg.Lanes = nextOddAtLeast(cfg.NParts)
	}
	return nil
}

// nextOddAtLeast returns the smallest odd number >= n, so a default lane
// count derived from the partition count stays odd (a cheap proxy for
// prime-ish spreading across lanes without a primality test).
func nextOddAtLeast(n int) int {
	if n <= 0 {
		return 1
	}
	if n%2 == 0 {
		n++
	}
	return n
}

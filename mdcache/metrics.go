// metrics.go: a thin Prometheus abstraction, following the teacher repo's
// pkg/metrics.go shape (metricsSink interface, noop vs. Prometheus
// implementations selected by whether a *prometheus.Registry was supplied).
//
// © 2025 mdcache authors. MIT License.
package mdcache

import "github.com/prometheus/client_golang/prometheus"

// metricsSink abstracts the concrete metrics backend away from the rest of
// the package, exactly as the teacher's metricsSink does.
type metricsSink interface {
	incHit()
	incMiss()
	incEvict()
	incReclaim(n int)
	setOpenFDs(v int64)
	setEntryCount(v int64)
	setFutility(v int64)
	incStale()
}

type noopMetrics struct{}

func (noopMetrics) incHit()           {}
func (noopMetrics) incMiss()          {}
func (noopMetrics) incEvict()         {}
func (noopMetrics) incReclaim(int)    {}
func (noopMetrics) setOpenFDs(int64)  {}
func (noopMetrics) setEntryCount(int64) {}
func (noopMetrics) setFutility(int64) {}
func (noopMetrics) incStale()         {}

type promMetrics struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	evictions  prometheus.Counter
	reclaims   prometheus.Counter
	staleCount prometheus.Counter
	openFDs    prometheus.Gauge
	entries    prometheus.Gauge
	futility   prometheus.Gauge
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	pm := &promMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mdcache", Name: "hits_total", Help: "Cache hits.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mdcache", Name: "misses_total", Help: "Cache misses.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mdcache", Name: "evictions_total", Help: "Entries reaped for capacity.",
		}),
		reclaims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mdcache", Name: "descriptor_reclaims_total", Help: "Descriptors closed by the reclaimer.",
		}),
		staleCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mdcache", Name: "stale_total", Help: "Backend stale-handle errors observed.",
		}),
		openFDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mdcache", Name: "open_descriptors", Help: "Open backend descriptors held by the cache.",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mdcache", Name: "entries", Help: "Entries currently reachable from the index.",
		}),
		futility: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mdcache", Name: "reclaimer_futility", Help: "Consecutive futile reclaimer passes.",
		}),
	}
	reg.MustRegister(pm.hits, pm.misses, pm.evictions, pm.reclaims, pm.staleCount, pm.openFDs, pm.entries, pm.futility)
	return pm
}

func (m *promMetrics) incHit()             { m.hits.Inc() }
func (m *promMetrics) incMiss()            { m.misses.Inc() }
func (m *promMetrics) incEvict()           { m.evictions.Inc() }
func (m *promMetrics) incReclaim(n int)    { m.reclaims.Add(float64(n)) }
func (m *promMetrics) setOpenFDs(v int64)  { m.openFDs.Set(float64(v)) }
func (m *promMetrics) setEntryCount(v int64) { m.entries.Set(float64(v)) }
func (m *promMetrics) setFutility(v int64) { m.futility.Set(float64(v)) }
func (m *promMetrics) incStale()           { m.staleCount.Inc() }

func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}

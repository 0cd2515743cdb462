package mdcache

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNoopMetricsSinkDoesNotPanic(t *testing.T) {
	var m metricsSink = noopMetrics{}
	m.incHit()
	m.incMiss()
	m.incEvict()
	m.incReclaim(3)
	m.setOpenFDs(10)
	m.setEntryCount(20)
	m.setFutility(1)
	m.incStale()
}

func TestNewMetricsSinkNilRegistryReturnsNoop(t *testing.T) {
	sink := newMetricsSink(nil)
	if _, ok := sink.(noopMetrics); !ok {
		t.Fatalf("newMetricsSink(nil) = %T, want noopMetrics", sink)
	}
}

func TestNewMetricsSinkWithRegistryCountsObservations(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := newMetricsSink(reg)
	pm, ok := sink.(*promMetrics)
	if !ok {
		t.Fatalf("newMetricsSink(reg) = %T, want *promMetrics", sink)
	}

	pm.incHit()
	pm.incHit()
	pm.incMiss()
	pm.incReclaim(4)
	pm.setOpenFDs(7)
	pm.setEntryCount(42)
	pm.setFutility(2)
	pm.incStale()
	pm.incEvict()

	if got := testCounterValue(t, pm.hits); got != 2 {
		t.Fatalf("hits = %v, want 2", got)
	}
	if got := testCounterValue(t, pm.misses); got != 1 {
		t.Fatalf("misses = %v, want 1", got)
	}
	if got := testCounterValue(t, pm.reclaims); got != 4 {
		t.Fatalf("reclaims = %v, want 4", got)
	}
	if got := testGaugeValue(t, pm.openFDs); got != 7 {
		t.Fatalf("openFDs = %v, want 7", got)
	}
	if got := testGaugeValue(t, pm.entries); got != 42 {
		t.Fatalf("entries = %v, want 42", got)
	}
}

func testCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func testGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

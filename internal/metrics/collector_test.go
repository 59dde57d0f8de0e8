package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/nan80211/nand/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.Peers == nil {
		t.Error("Peers is nil")
	}
	if c.Role == nil {
		t.Error("Role is nil")
	}
	if c.ElectionTransitions == nil {
		t.Error("ElectionTransitions is nil")
	}
	if c.RXFrames == nil {
		t.Error("RXFrames is nil")
	}
	if c.OutboundBufferOccupancy == nil {
		t.Error("OutboundBufferOccupancy is nil")
	}
	if c.OutboundBufferDrops == nil {
		t.Error("OutboundBufferDrops is nil")
	}
	if c.Services == nil {
		t.Error("Services is nil")
	}

	// Verify all metrics are registered by gathering them.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	// No data yet, so families may be empty -- but registration must not panic.
	_ = families
}

func TestSetPeerCount(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SetPeerCount(3)

	if val := gaugeValue(t, c.Peers); val != 3 {
		t.Errorf("Peers = %v, want 3", val)
	}

	c.SetPeerCount(0)

	if val := gaugeValue(t, c.Peers); val != 0 {
		t.Errorf("Peers = %v, want 0", val)
	}
}

func TestSetRole(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SetRole(0) // master

	if val := gaugeVecValue(t, c.Role, "master"); val != 1 {
		t.Errorf("Role(master) = %v, want 1", val)
	}
	if val := gaugeVecValue(t, c.Role, "sync"); val != 0 {
		t.Errorf("Role(sync) = %v, want 0", val)
	}
	if val := gaugeVecValue(t, c.Role, "non_sync"); val != 0 {
		t.Errorf("Role(non_sync) = %v, want 0", val)
	}

	c.SetRole(2) // non_sync

	if val := gaugeVecValue(t, c.Role, "master"); val != 0 {
		t.Errorf("Role(master) = %v, want 0", val)
	}
	if val := gaugeVecValue(t, c.Role, "non_sync"); val != 1 {
		t.Errorf("Role(non_sync) = %v, want 1", val)
	}
}

func TestRecordElectionTransition(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RecordElectionTransition(0)
	c.RecordElectionTransition(0)
	c.RecordElectionTransition(1)

	if val := counterVecValue(t, c.ElectionTransitions, "master"); val != 2 {
		t.Errorf("ElectionTransitions(master) = %v, want 2", val)
	}
	if val := counterVecValue(t, c.ElectionTransitions, "sync"); val != 1 {
		t.Errorf("ElectionTransitions(sync) = %v, want 1", val)
	}
}

func TestIncRXFrames(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncRXFrames("ok")
	c.IncRXFrames("ok")
	c.IncRXFrames("ignore_failed_crc")

	if val := counterVecValue(t, c.RXFrames, "ok"); val != 2 {
		t.Errorf("RXFrames(ok) = %v, want 2", val)
	}
	if val := counterVecValue(t, c.RXFrames, "ignore_failed_crc"); val != 1 {
		t.Errorf("RXFrames(ignore_failed_crc) = %v, want 1", val)
	}
}

func TestOutboundBuffer(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SetOutboundBufferOccupancy(4)
	if val := gaugeValue(t, c.OutboundBufferOccupancy); val != 4 {
		t.Errorf("OutboundBufferOccupancy = %v, want 4", val)
	}

	c.IncOutboundBufferDrops()
	c.IncOutboundBufferDrops()
	if val := counterValue(t, c.OutboundBufferDrops); val != 2 {
		t.Errorf("OutboundBufferDrops = %v, want 2", val)
	}
}

func TestSetServiceCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SetServiceCounts(2, 5)

	if val := gaugeVecValue(t, c.Services, "published"); val != 2 {
		t.Errorf("Services(published) = %v, want 2", val)
	}
	if val := gaugeVecValue(t, c.Services, "subscribed"); val != 5 {
		t.Errorf("Services(subscribed) = %v, want 5", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeVecValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

func counterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}

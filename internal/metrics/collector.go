// Package metrics exposes the nand daemon's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "nand"
	subsystem = "nan"
)

// Label names for nan metrics.
const (
	labelRole   = "role"
	labelReason = "reason"
	labelKind   = "kind" // service kind: published / subscribed
)

// -------------------------------------------------------------------------
// Collector — Prometheus NAN Metrics
// -------------------------------------------------------------------------

// Collector holds every nand Prometheus metric.
//
//   - Peers/Role gauges track cluster membership and this device's
//     current election role.
//   - ElectionTransitions counts role-machine transitions for alerting.
//   - RXFrames counts received frames by outcome (parsed/ignored/dropped),
//     labeled by the §7 error-taxonomy reason.
//   - OutboundBuffer gauges/counters track the bounded per-device frame
//     buffer's occupancy and drop rate (§5 "Resource policy").
//   - Services gauges track registered publish/subscribe counts by kind.
type Collector struct {
	// Peers tracks the number of peers currently known to the peer table.
	Peers prometheus.Gauge

	// Role is 1 for the currently active role (master/sync/non_sync) and
	// 0 for the other two; set via SetRole.
	Role *prometheus.GaugeVec

	// ElectionTransitions counts DW-end role-machine transitions, labeled
	// with the destination role.
	ElectionTransitions *prometheus.CounterVec

	// RXFrames counts received radio frames by outcome, labeled with the
	// §7 error-taxonomy reason ("ok" for a frame that was fully
	// processed without error).
	RXFrames *prometheus.CounterVec

	// OutboundBufferOccupancy is the current length of the device's
	// bounded outbound frame buffer.
	OutboundBufferOccupancy prometheus.Gauge

	// OutboundBufferDrops counts frames dropped because the outbound
	// buffer (device-wide or per-peer) was full.
	OutboundBufferDrops prometheus.Counter

	// Services tracks the number of registered services, labeled by kind
	// ("published" or "subscribed").
	Services *prometheus.GaugeVec
}

// NewCollector creates a Collector with every nand metric registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Peers,
		c.Role,
		c.ElectionTransitions,
		c.RXFrames,
		c.OutboundBufferOccupancy,
		c.OutboundBufferDrops,
		c.Services,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peers",
			Help:      "Number of peers currently known to the peer table.",
		}),

		Role: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "role",
			Help:      "Whether this device currently holds the given election role (1) or not (0).",
		}, []string{labelRole}),

		ElectionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "election_transitions_total",
			Help:      "Total role-machine transitions, labeled by destination role.",
		}, []string{labelRole}),

		RXFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rx_frames_total",
			Help:      "Total received radio frames, labeled by outcome reason.",
		}, []string{labelReason}),

		OutboundBufferOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbound_buffer_occupancy",
			Help:      "Current length of the device outbound frame buffer.",
		}),

		OutboundBufferDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbound_buffer_drops_total",
			Help:      "Total frames dropped because an outbound buffer was full.",
		}),

		Services: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "services",
			Help:      "Number of registered services, labeled by kind.",
		}, []string{labelKind}),
	}
}

// -------------------------------------------------------------------------
// Peer / Role
// -------------------------------------------------------------------------

// SetPeerCount records the current size of the peer table.
func (c *Collector) SetPeerCount(n int) {
	c.Peers.Set(float64(n))
}

// roleNames are the label values SetRole/RecordElectionTransition use.
var roleNames = [3]string{"master", "sync", "non_sync"}

// SetRole marks role as the device's current active role and the other
// two as inactive.
func (c *Collector) SetRole(role uint8) {
	for i, name := range roleNames {
		if uint8(i) == role {
			c.Role.WithLabelValues(name).Set(1)
		} else {
			c.Role.WithLabelValues(name).Set(0)
		}
	}
}

// RecordElectionTransition increments the transition counter for the
// role the device just entered.
func (c *Collector) RecordElectionTransition(role uint8) {
	if int(role) >= len(roleNames) {
		return
	}
	c.ElectionTransitions.WithLabelValues(roleNames[role]).Inc()
}

// -------------------------------------------------------------------------
// RX
// -------------------------------------------------------------------------

// IncRXFrames increments the received-frame counter for the given
// outcome reason (e.g. "ok", "too_short", "ignore_failed_crc").
func (c *Collector) IncRXFrames(reason string) {
	c.RXFrames.WithLabelValues(reason).Inc()
}

// -------------------------------------------------------------------------
// Outbound Buffer
// -------------------------------------------------------------------------

// SetOutboundBufferOccupancy records the current outbound buffer length.
func (c *Collector) SetOutboundBufferOccupancy(n int) {
	c.OutboundBufferOccupancy.Set(float64(n))
}

// IncOutboundBufferDrops increments the outbound-buffer-full drop
// counter.
func (c *Collector) IncOutboundBufferDrops() {
	c.OutboundBufferDrops.Inc()
}

// -------------------------------------------------------------------------
// Services
// -------------------------------------------------------------------------

// SetServiceCounts records the number of published and subscribed
// services currently registered.
func (c *Collector) SetServiceCounts(published, subscribed int) {
	c.Services.WithLabelValues("published").Set(float64(published))
	c.Services.WithLabelValues("subscribed").Set(float64(subscribed))
}

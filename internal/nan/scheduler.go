package nan

import (
	"log/slog"
	"time"

	"github.com/nan80211/nand/internal/wire"
)

// FrameSink is the outbound half of the radio I/O contract: a
// blocking-free send of a fully-formed frame (§1, §6 wlan_send). The
// core holds this as a collaborator; the concrete implementation lives
// in internal/radio.
type FrameSink interface {
	Send(frame []byte) error
}

// defaultFollowUpPayload is the canned reachability message a discovery
// result auto-replies with, matching the literal payload of spec.md
// §8's scenario S4.
var defaultFollowUpPayload = []byte("hi")

// Scheduler arms and reacts to the four timers that drive the DW
// schedule (§4.6): the discovery-beacon timer, the DW-start timer, the
// DW-end timer, and the peer-cleanup tick. The owning reactor (cmd/nand)
// is responsible for actually scheduling wall-clock timers; Scheduler
// tells it how long to wait next via the Next*Delay return values and
// reacts when that deadline arrives.
//
// Scheduler also subscribes to the device's event bus: a
// DiscoveryResultEvent auto-transmits a follow-up back to the
// publisher, and a ReceiveEvent is logged, mirroring the original
// daemon's handle_event_discovery_result -> nan_transmit reply and its
// EVENT_RECEIVE logging (§1, §4.5).
type Scheduler struct {
	dev    *Device
	sink   FrameSink
	logger *slog.Logger

	lastDiscoveryBeacon time.Time

	onDrop func()
}

// NewScheduler creates a Scheduler for dev, emitting frames through
// sink, and registers its event-bus listener.
func NewScheduler(dev *Device, sink FrameSink, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{dev: dev, sink: sink, logger: logger}
	dev.Events.Subscribe("", s.onEvent)
	return s
}

// SetDropHook installs fn to be called whenever Enqueue drops a frame
// because the outbound buffer is full, so a collaborator (the
// Prometheus collector in cmd/nand) can record it.
func (s *Scheduler) SetDropHook(fn func()) { s.onDrop = fn }

// onEvent reacts to events published on the device's bus while the
// service engine processes received descriptors.
func (s *Scheduler) onEvent(ev Event) {
	switch e := ev.(type) {
	case DiscoveryResultEvent:
		svc := s.dev.Services.Get(e.SubscribeID)
		if svc == nil {
			return
		}
		frame := s.dev.BuildFollowUp(e.Address, svc, e.PublishID, defaultFollowUpPayload)
		s.Enqueue(frame)
		s.logger.Info("discovery result, sending follow-up",
			slog.String("peer", e.Address.String()),
			slog.String("service", svc.Name))
	case ReceiveEvent:
		s.logger.Info("received follow-up",
			slog.String("peer", e.Address.String()),
			slog.String("payload", string(e.Payload)))
	}
}

// NextDiscoveryBeaconDelay returns how long until the next
// DISCOVERY_BEACON_INTERVAL boundary, which may fall inside a DW. Inside
// a DW, while Role != MASTER, or while the initial scan hasn't completed,
// beacons are withheld and the caller should treat the returned delay as
// advisory only (OnDiscoveryBeaconTick is a no-op in those cases, so
// polling at this cadence is harmless).
func (s *Scheduler) NextDiscoveryBeaconDelay(now time.Time) time.Duration {
	tu := s.dev.Timer.SyncedTimeTU(now)
	m := tu % DiscoveryBeaconInterval
	if m < 0 {
		m += DiscoveryBeaconInterval
	}
	return time.Duration(DiscoveryBeaconInterval-m) * tuMicros * time.Microsecond
}

// OnDiscoveryBeaconTick fires at each discovery-beacon boundary. It is a
// no-op inside a DW, while not MASTER, or before the initial scan
// completes (§4.6).
func (s *Scheduler) OnDiscoveryBeaconTick(now time.Time) {
	if s.dev.Timer.InDW(now) {
		return
	}
	if s.dev.Election.Role != RoleMaster {
		return
	}
	if !s.dev.Timer.InitialScanDone(now) {
		return
	}
	frame := s.dev.BuildDiscoveryBeacon(now)
	if err := s.sink.Send(frame); err != nil {
		s.logger.Warn("discovery beacon send failed", slog.String("error", err.Error()))
		return
	}
	s.lastDiscoveryBeacon = now
}

// NextDWStartDelay returns how long until the next DW starts.
func (s *Scheduler) NextDWStartDelay(now time.Time) time.Duration {
	return time.Duration(s.dev.Timer.NextDWUsec(now)) * time.Microsecond
}

// OnDWStart fires at DW start: emits a sync beacon, flushes the device's
// outbound buffer (or each peer's, in desync mode), and emits a
// service-discovery frame for the current announce candidates. Order is
// significant — beacon, then buffered frames, then SDF (§5 "Ordering").
func (s *Scheduler) OnDWStart(now time.Time) {
	if frame := s.dev.BuildSyncBeacon(now); frame != nil {
		if err := s.sink.Send(frame); err != nil {
			s.logger.Warn("sync beacon send failed", slog.String("error", err.Error()))
		}
	}

	s.flushBuffers()

	candidates := s.dev.Services.AnnounceCandidates()
	if len(candidates) > 0 {
		sdf := s.dev.BuildServiceDiscoveryFrame(candidates)
		if err := s.sink.Send(sdf); err != nil {
			s.logger.Warn("service discovery frame send failed", slog.String("error", err.Error()))
		}
		s.dev.Services.UpdateAfterAnnounce(s.dev.Events, candidates)
	}
}

func (s *Scheduler) flushBuffers() {
	if s.dev.Desync != nil && s.dev.Desync.Enabled {
		s.dev.Peers.Each(func(p *Peer) {
			for _, frame := range p.Outbound.Drain() {
				if err := s.sink.Send(frame); err != nil {
					s.logger.Warn("peer buffer flush failed", slog.String("peer", p.Addr.String()), slog.String("error", err.Error()))
				}
			}
		})
		return
	}
	for _, frame := range s.dev.Buffer.Drain() {
		if err := s.sink.Send(frame); err != nil {
			s.logger.Warn("device buffer flush failed", slog.String("error", err.Error()))
		}
	}
}

// NextDWEndDelay returns how long until the current (or next) DW
// closes.
func (s *Scheduler) NextDWEndDelay(now time.Time) time.Duration {
	return time.Duration(s.dev.Timer.DWEndUsec(now)) * time.Microsecond
}

// OnDWEnd runs master election over the current peer set, anchor-master
// expiration, and the periodic preference/random-factor refresh.
func (s *Scheduler) OnDWEnd(now time.Time) {
	s.dev.Election.RunElection(s.dev.Peers)
	s.dev.Election.ExpireAnchorMaster()
	s.dev.Election.MaybeRefreshIdentity()
}

// DefaultCleanupDelay is the fixed interval between peer-cleanup sweeps.
func (s *Scheduler) DefaultCleanupDelay() time.Duration { return DefaultCleanupTick }

// OnCleanupTick removes peers that have exceeded the peer timeout
// (§4.3).
func (s *Scheduler) OnCleanupTick(now time.Time) {
	s.dev.Peers.Clean(now)
}

// Enqueue pushes frame onto the device's (or, in desync mode, a peer's)
// outbound buffer for the next DW flush, honoring the bounded-buffer
// resource policy (§5, §7).
func (s *Scheduler) Enqueue(frame []byte) {
	buf := s.dev.Buffer
	if s.dev.Desync != nil && s.dev.Desync.Enabled {
		// Route to the buffer of the peer named in the 802.11 Addr1 field.
		if info, err := wire.ParseRadiotap(frame); err == nil && len(frame) >= info.HeaderLen+10 {
			var dst wire.EtherAddr
			copy(dst[:], frame[info.HeaderLen+4:info.HeaderLen+10])
			if p := s.dev.Peers.Get(dst); p != nil {
				buf = p.Outbound
			}
		}
	}
	if err := buf.Push(frame); err != nil {
		s.logger.Warn("outbound buffer full, dropping frame")
		if s.onDrop != nil {
			s.onDrop()
		}
	}
}

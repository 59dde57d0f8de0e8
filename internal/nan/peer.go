package nan

import (
	"time"

	"github.com/nan80211/nand/internal/wire"
)

// DefaultPeerTimeout is 10 DW intervals (~5.24s), per §4.3.
const DefaultPeerTimeout = 10 * DWInterval * tuMicros * time.Microsecond

// DefaultCleanupTick is 2 DW intervals, per §4.3.
const DefaultCleanupTick = 2 * DWInterval * tuMicros * time.Microsecond

const rssiRingSize = 32

// PeerObserver is the capability interface the peer table uses to notify
// its collaborator — normally the radio/host I/O layer — of membership
// changes, replacing the source's function-pointer callback pair (§9
// "Callback graph").
type PeerObserver interface {
	OnPeerAdded(p *Peer)
	OnPeerRemoved(p *Peer)
}

// NopObserver implements PeerObserver with no-ops, for tests and for
// configurations that don't need host-side neighbor management.
type NopObserver struct{}

func (NopObserver) OnPeerAdded(*Peer)   {}
func (NopObserver) OnPeerRemoved(*Peer) {}

// Peer is a known device, created on first beacon or action frame from a
// new source address. See spec §3.
type Peer struct {
	Addr      wire.EtherAddr
	ClusterID wire.EtherAddr

	LastUpdate       time.Time
	LastBeaconTime   time.Time
	LastFollowUpTime time.Time
	LastTimestamp    int64 // peer-reported TSF, usec

	MasterPreference uint8
	RandomFactor     uint8
	AnchorMasterRank wire.MasterRank
	AMBTT            uint32
	HopCount         uint8
	MasterCandidate  bool

	rssiRing [rssiRingSize]int8
	rssiN    int
	rssiSum  int64
	rssiNext int

	Timer    *Timer // own virtual clock, unused by the core clock path directly
	OldTimer *Timer // desync-experiment shadow clock (§9); nil until desync or the console's "set timer" creates it

	Outbound *FrameBuffer

	Forward bool // desync experiment: relay frames through this peer (§9)
	Modify  bool // desync experiment: rewrite relayed frames (§9)
}

// RSSIAverage returns the moving average of the last up to 32 beacon
// RSSI samples.
func (p *Peer) RSSIAverage() float64 {
	if p.rssiN == 0 {
		return 0
	}
	return float64(p.rssiSum) / float64(p.rssiN)
}

// MasterRank computes this peer's election key from its last-reported
// preference, random factor, and address.
func (p *Peer) MasterRank() wire.MasterRank {
	return wire.ComputeMasterRank(p.MasterPreference, p.RandomFactor, p.Addr)
}

// IPv6LinkLocal derives the RFC 4291 modified-EUI-64 link-local address
// for this peer's hardware address.
func (p *Peer) IPv6LinkLocal() [16]byte {
	var out [16]byte
	out[0] = 0xfe
	out[1] = 0x80
	out[8] = p.Addr[0] ^ 0x02
	out[9] = p.Addr[1]
	out[10] = p.Addr[2]
	out[11] = 0xff
	out[12] = 0xfe
	out[13] = p.Addr[3]
	out[14] = p.Addr[4]
	out[15] = p.Addr[5]
	return out
}

// PeerAddResult reports whether add_or_update created a new peer or
// refreshed an existing one.
type PeerAddResult uint8

const (
	PeerAdded PeerAddResult = iota
	PeerUpdated
)

// Table is the keyed collection of known peers. Per §9 "Peer and service
// collections", this replaces the source's hand-rolled linked list with
// a map; iteration order is not observable.
type Table struct {
	peers    map[wire.EtherAddr]*Peer
	observer PeerObserver
	timeout  time.Duration
}

// NewTable creates an empty peer table reporting membership changes to
// observer.
func NewTable(observer PeerObserver) *Table {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Table{
		peers:    make(map[wire.EtherAddr]*Peer),
		observer: observer,
		timeout:  DefaultPeerTimeout,
	}
}

// Get returns the peer at addr, or nil if unknown.
func (t *Table) Get(addr wire.EtherAddr) *Peer {
	return t.peers[addr]
}

// Len returns the number of known peers.
func (t *Table) Len() int { return len(t.peers) }

// Each calls fn for every known peer. Order is unspecified.
func (t *Table) Each(fn func(*Peer)) {
	for _, p := range t.peers {
		fn(p)
	}
}

// AddOrUpdate creates a new peer entry on first sight of addr, or
// refreshes LastUpdate/ClusterID on an existing one. On ADDED, the
// observer's OnPeerAdded hook fires so the I/O layer can install a host
// neighbor entry.
func (t *Table) AddOrUpdate(addr, clusterID wire.EtherAddr, now time.Time) (*Peer, PeerAddResult) {
	if p, ok := t.peers[addr]; ok {
		p.ClusterID = clusterID
		p.LastUpdate = now
		return p, PeerUpdated
	}
	p := &Peer{
		Addr:      addr,
		ClusterID: clusterID,
		LastUpdate: now,
		Outbound:  NewFrameBuffer(DefaultOutboundCapacity),
	}
	t.peers[addr] = p
	t.observer.OnPeerAdded(p)
	return p, PeerAdded
}

// SetMasterIndication records a peer's advertised preference and random
// factor.
func (t *Table) SetMasterIndication(p *Peer, preference, randomFactor uint8) {
	p.MasterPreference = preference
	p.RandomFactor = randomFactor
}

// SetAnchorInfo records a peer's advertised anchor-master rank, AMBTT,
// and hop count. When hop_count == 0 the peer IS the anchor master, so
// its AMBTT is overridden with its own last-reported timestamp (the
// authoritative AMBTT source).
func (t *Table) SetAnchorInfo(p *Peer, amr wire.MasterRank, ambtt uint32, hopCount uint8) {
	p.AnchorMasterRank = amr
	p.HopCount = hopCount
	if hopCount == 0 {
		p.AMBTT = uint32(p.LastTimestamp)
	} else {
		p.AMBTT = ambtt
	}
}

// SetBeaconInfo feeds a new RSSI sample into the peer's moving average
// and records its reported timestamp.
func (t *Table) SetBeaconInfo(p *Peer, rssi int8, timestamp int64) {
	if p.rssiN == rssiRingSize {
		p.rssiSum -= int64(p.rssiRing[p.rssiNext])
	} else {
		p.rssiN++
	}
	p.rssiRing[p.rssiNext] = rssi
	p.rssiSum += int64(rssi)
	p.rssiNext = (p.rssiNext + 1) % rssiRingSize
	p.LastTimestamp = timestamp
}

// Remove deletes addr from the table, invoking the observer's
// OnPeerRemoved hook exactly once if it was present.
func (t *Table) Remove(addr wire.EtherAddr) {
	p, ok := t.peers[addr]
	if !ok {
		return
	}
	delete(t.peers, addr)
	t.observer.OnPeerRemoved(p)
}

// Clean removes every peer whose last update is older than the table's
// timeout, iteratively, so the observer sees one OnPeerRemoved call per
// expired peer (§4.3 invariant 4 and 7).
func (t *Table) Clean(now time.Time) {
	for {
		var stale wire.EtherAddr
		found := false
		for addr, p := range t.peers {
			if now.Sub(p.LastUpdate) >= t.timeout {
				stale = addr
				found = true
				break
			}
		}
		if !found {
			return
		}
		t.Remove(stale)
	}
}

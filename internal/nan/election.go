package nan

import (
	"time"

	"github.com/nan80211/nand/internal/wire"
)

// Role is this device's position in the three-state anchor-master
// election machine (§4.4).
type Role uint8

const (
	RoleMaster Role = iota
	RoleSync
	RoleNonSync
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "MASTER"
	case RoleSync:
		return "SYNC"
	case RoleNonSync:
		return "NON_SYNC"
	default:
		return "UNKNOWN"
	}
}

// RSSI thresholds, in dBm, from §4.4.
const (
	CloseRSSI  = -60
	MiddleRSSI = -75
)

// ElectionThresholds parameterizes the transition conditions. §9 flags
// the non-master→MASTER condition as possibly reversed from intent;
// exposing it here lets a deployment correct it without touching the
// state machine.
type ElectionThresholds struct {
	// MasterToSyncCloseCount/MiddleCount: peers with higher MR needed to
	// leave MASTER.
	MasterToSyncCloseCount  int
	MasterToSyncMiddleCount int
	// ToMasterRequireZeroClose: the literal source behavior — zero close
	// peers AND at least one peer with higher MR. See §9.
	ToMasterRequireZeroClose bool
	SyncToNonSyncCloseCount  int
	SyncToNonSyncMiddleCount int
}

// DefaultElectionThresholds matches §4.4's literal text, including the
// flagged non-master→MASTER condition.
func DefaultElectionThresholds() ElectionThresholds {
	return ElectionThresholds{
		MasterToSyncCloseCount:   1,
		MasterToSyncMiddleCount:  3,
		ToMasterRequireZeroClose: true,
		SyncToNonSyncCloseCount:  1,
		SyncToNonSyncMiddleCount: 3,
	}
}

// Preference/random-factor refresh cadence, in DWs (§4.4).
const (
	PreferenceRefreshDWs  = 240
	RandomFactorRefreshDWs = 120
)

// Election holds this device's role, master rank, and anchor-master
// bookkeeping.
type Election struct {
	SelfAddr wire.EtherAddr

	Role             Role
	MasterPreference uint8
	RandomFactor     uint8
	masterRank       wire.MasterRank

	AnchorMasterRank wire.MasterRank
	AMBTT            uint32
	HopCount         uint8

	lastAMR   wire.MasterRank
	lastAMBTT uint32
	hasLast   bool

	noAMBTTUpdateDWs    int
	noHopCountUpdateDWs int
	lastAMBTTSeen       uint32
	lastHopCountSeen    uint8

	dwsSincePreference  int
	dwsSinceRandomFactor int

	Thresholds ElectionThresholds

	ClusterID wire.EtherAddr

	RandSource func() uint8
}

// NewElection creates an Election in the MASTER role — a freshly started
// device with no peers is, by construction, its own anchor.
func NewElection(self, clusterID wire.EtherAddr, preference uint8, rnd func() uint8) *Election {
	if rnd == nil {
		rnd = func() uint8 { return 0 }
	}
	e := &Election{
		SelfAddr:         self,
		Role:             RoleMaster,
		MasterPreference: preference,
		RandomFactor:     rnd(),
		ClusterID:        clusterID,
		Thresholds:       DefaultElectionThresholds(),
		RandSource:       rnd,
	}
	e.recompute()
	e.AnchorMasterRank = e.masterRank
	e.HopCount = 0
	return e
}

// MasterRank returns the currently cached master rank; it is
// recomputed whenever preference, random factor, or address change
// (§3 invariant 3).
func (e *Election) MasterRank() wire.MasterRank { return e.masterRank }

func (e *Election) recompute() {
	e.masterRank = wire.ComputeMasterRank(e.MasterPreference, e.RandomFactor, e.SelfAddr)
}

// IsAnchorMaster reports whether this device is currently the anchor
// (hop_count == 0 iff true, §3 invariant 2).
func (e *Election) IsAnchorMaster() bool { return e.HopCount == 0 }

// adoptSelfAsAnchor makes this device its own anchor master.
func (e *Election) adoptSelfAsAnchor() {
	e.AnchorMasterRank = e.masterRank
	e.HopCount = 0
	e.hasLast = false
	e.noAMBTTUpdateDWs = 0
	e.noHopCountUpdateDWs = 0
}

// IsMasterCandidate reports whether p is a master candidate relative to
// this device's current anchor: it shares the anchor-master-rank and
// either has a lower hop count, or an equal hop count and a higher
// master rank.
func (e *Election) IsMasterCandidate(p *Peer) bool {
	if p.AnchorMasterRank != e.AnchorMasterRank {
		return false
	}
	if p.HopCount < e.HopCount {
		return true
	}
	return p.HopCount == e.HopCount && p.MasterRank() > e.masterRank
}

// SelectAnchorMaster runs the anchor-master-selection procedure (§4.4)
// on receipt of a sync beacon from peer carrying (amr, ambtt, hopCount),
// after clock sync, given the local synced_time_tu.
func (e *Election) SelectAnchorMaster(peer *Peer, amr wire.MasterRank, ambtt uint32, hopCount uint8, syncedTimeTU int64) {
	// Step 1: stale-AMBTT predicate — an intentionally coarse
	// monotonicity check mixing TU and a fixed 8192 (16*512) scale; kept
	// literal per §9.
	if e.AnchorMasterRank == amr && int64(ambtt) <= syncedTimeTU*8192 {
		return
	}

	if e.IsAnchorMaster() {
		if e.masterRank >= amr {
			return // keep self
		}
		if amr == e.masterRank {
			return // our own rank relayed back (dead branch given the >= check, kept for clarity)
		}
		// Adopt peer's anchor.
		e.lastAMR = e.AnchorMasterRank
		e.lastAMBTT = e.AMBTT
		e.hasLast = true
		e.AnchorMasterRank = amr
		e.AMBTT = ambtt
		e.HopCount = hopCount + 1
		return
	}

	switch {
	case e.AnchorMasterRank < amr:
		if e.hasLast && e.lastAMR == amr && e.lastAMBTT >= ambtt {
			return // stale
		}
		e.AnchorMasterRank = amr
		e.AMBTT = ambtt
		e.HopCount = hopCount + 1
	case e.AnchorMasterRank > amr:
		const issuerMask = 0xFFFFFFFFFFFF // low 48 bits: issuer address
		if amr&issuerMask != e.AnchorMasterRank&issuerMask {
			return // not from the same issuer as our current anchor
		}
		if e.masterRank > amr {
			e.adoptSelfAsAnchor()
			return
		}
		// Current anchor's rank has decreased; follow it down.
		e.AnchorMasterRank = amr
		e.AMBTT = ambtt
		e.HopCount = hopCount + 1
	default: // equal
		if ambtt > e.AMBTT {
			e.AMBTT = ambtt
		}
		if hopCount+1 < e.HopCount {
			e.HopCount = hopCount + 1
		}
	}
}

// ExpireAnchorMaster runs the end-of-DW anchor-master-expiration step
// (§4.4).
func (e *Election) ExpireAnchorMaster() {
	if e.IsAnchorMaster() {
		e.noAMBTTUpdateDWs = 0
		e.noHopCountUpdateDWs = 0
		e.lastAMBTTSeen = e.AMBTT
		e.lastHopCountSeen = e.HopCount
		return
	}

	if e.AMBTT > e.lastAMBTTSeen {
		e.noAMBTTUpdateDWs = 0
	} else {
		e.noAMBTTUpdateDWs++
	}
	if e.HopCount < e.lastHopCountSeen {
		e.noHopCountUpdateDWs = 0
	} else {
		e.noHopCountUpdateDWs++
	}
	e.lastAMBTTSeen = e.AMBTT
	e.lastHopCountSeen = e.HopCount

	if e.noAMBTTUpdateDWs >= 3 {
		e.adoptSelfAsAnchor()
		return
	}
	if e.noHopCountUpdateDWs >= 3 {
		e.HopCount = 255
	}
}

// ClusterGrade is (master_preference, low-19-bits-of-timestamp), used
// lexicographically to resolve colliding clusters.
type ClusterGrade struct {
	Preference uint8
	TimestampLow19 uint32
}

func (g ClusterGrade) Less(other ClusterGrade) bool {
	if g.Preference != other.Preference {
		return g.Preference < other.Preference
	}
	return g.TimestampLow19 < other.TimestampLow19
}

func GradeOf(preference uint8, timestampUsec int64) ClusterGrade {
	return ClusterGrade{Preference: preference, TimestampLow19: uint32(timestampUsec) & 0x7FFFF}
}

// MaybeJoinCluster compares this device's cluster grade against a peer's
// and, if the peer's is higher, adopts its cluster_id and hard-syncs the
// timer to its timestamp. Returns true if the cluster was adopted.
func (e *Election) MaybeJoinCluster(timer *Timer, now time.Time, peerClusterID wire.EtherAddr, peerGrade ClusterGrade, peerTimestampUsec int64) bool {
	ourGrade := GradeOf(e.MasterPreference, timer.SyncedTimeUsec(now))
	if ourGrade.Less(peerGrade) {
		e.ClusterID = peerClusterID
		timer.SyncTime(now, peerTimestampUsec)
		return true
	}
	return false
}

// RunElection evaluates the role-transition conditions against the
// current peer set at DW end (§4.4's state diagram).
func (e *Election) RunElection(peers *Table) {
	closeHigherMR, middleHigherMR := 0, 0
	closeCandidates, middleCandidates := 0, 0

	peers.Each(func(p *Peer) {
		rssi := p.RSSIAverage()
		higherMR := p.MasterRank() > e.masterRank
		isCandidate := e.IsMasterCandidate(p)

		if rssi > CloseRSSI {
			if higherMR {
				closeHigherMR++
			}
			if isCandidate {
				closeCandidates++
			}
		} else if rssi > MiddleRSSI {
			if higherMR {
				middleHigherMR++
			}
			if isCandidate {
				middleCandidates++
			}
		}
	})

	switch e.Role {
	case RoleMaster:
		if closeHigherMR >= e.Thresholds.MasterToSyncCloseCount || middleHigherMR >= e.Thresholds.MasterToSyncMiddleCount {
			e.Role = RoleSync
		}
	case RoleSync:
		if closeCandidates >= e.Thresholds.SyncToNonSyncCloseCount || middleCandidates >= e.Thresholds.SyncToNonSyncMiddleCount {
			e.Role = RoleNonSync
		} else if e.toMaster(closeHigherMR, middleHigherMR) {
			e.Role = RoleMaster
		}
	case RoleNonSync:
		if closeCandidates == 0 && middleCandidates < e.Thresholds.SyncToNonSyncMiddleCount {
			e.Role = RoleSync
		}
		if e.toMaster(closeHigherMR, middleHigherMR) {
			e.Role = RoleMaster
		}
	}
}

func (e *Election) toMaster(closeHigherMR, middleHigherMR int) bool {
	if !e.Thresholds.ToMasterRequireZeroClose {
		return closeHigherMR == 0 && middleHigherMR == 0
	}
	// Literal §4.4 text: zero close peers AND at least one close or
	// middle-range peer with a higher master rank. Flagged as possibly reversed
	// in §9; kept as specified.
	return closeHigherMR == 0 && (closeHigherMR+middleHigherMR) >= 1
}

// MaybeRefreshIdentity bumps the DW counters and, once either threshold
// is reached, refreshes random_factor and/or master_preference and
// recomputes the master rank (§4.4).
func (e *Election) MaybeRefreshIdentity() {
	e.dwsSincePreference++
	e.dwsSinceRandomFactor++

	changed := false
	if e.dwsSinceRandomFactor >= RandomFactorRefreshDWs {
		e.RandomFactor = e.RandSource()
		e.dwsSinceRandomFactor = 0
		changed = true
	}
	if e.dwsSincePreference >= PreferenceRefreshDWs {
		e.dwsSincePreference = 0
		changed = true
	}
	if changed {
		e.recompute()
	}
}

// SetMasterPreference updates the advertised preference and recomputes
// the master rank.
func (e *Election) SetMasterPreference(mp uint8) {
	e.MasterPreference = mp
	e.recompute()
}

// SetRandomFactor updates the random factor and recomputes the master
// rank.
func (e *Election) SetRandomFactor(rf uint8) {
	e.RandomFactor = rf
	e.recompute()
}

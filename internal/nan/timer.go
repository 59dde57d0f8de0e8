// Package nan implements the NAN cluster core: the synchronization
// timer, the peer table, the anchor-master election state machine, the
// service engine, the DW scheduler, and the RX pipeline that ties them
// together.
package nan

import "time"

// Timer constants, in TU (1 TU = 1024 microseconds).
const (
	DWLength                = 16
	DWInterval              = 512
	DiscoveryBeaconInterval = 100
	SyncBeaconInterval      = 512

	errorRingSize = 32
)

const tuMicros = 1024

// Timer holds this device's virtual synchronized clock: an epoch
// (base_time_usec) rebased whenever the cluster hard-syncs to a peer,
// and a moving-average drift correction accumulated from peer
// timestamps. See spec §4.2.
type Timer struct {
	baseTimeUsec int64

	errorRing [errorRingSize]int64
	errorN    int
	errorSum  int64
	errorNext int

	warmupDone   bool
	warmupUntil  time.Time
	scanDone     bool
	scanUntil    time.Time
}

// NewTimer creates a Timer whose epoch is now, with the warmup and
// initial-scan one-shots armed per §4.2 (120s warmup, 1s initial scan).
func NewTimer(now time.Time) *Timer {
	return &Timer{
		baseTimeUsec: now.UnixMicro(),
		warmupUntil:  now.Add(120 * time.Second),
		scanUntil:    now.Add(1 * time.Second),
	}
}

// SyncedTimeUsec returns now - base_time, the cluster's shared clock.
func (t *Timer) SyncedTimeUsec(now time.Time) int64 {
	return now.UnixMicro() - t.baseTimeUsec
}

// SyncedTimeTU returns SyncedTimeUsec divided into TU.
func (t *Timer) SyncedTimeTU(now time.Time) int64 {
	return t.SyncedTimeUsec(now) / tuMicros
}

// errorUsec returns the current moving-average drift correction.
func (t *Timer) errorUsec() int64 {
	if t.errorN == 0 {
		return 0
	}
	return t.errorSum / int64(t.errorN)
}

// FixedTimeUsec returns SyncedTimeUsec corrected by the moving-average
// error.
func (t *Timer) FixedTimeUsec(now time.Time) int64 {
	return t.SyncedTimeUsec(now) - t.errorUsec()
}

func (t *Timer) fixedTimeTU(now time.Time) int64 {
	return t.FixedTimeUsec(now) / tuMicros
}

// InDW reports whether now falls within a Discovery Window.
func (t *Timer) InDW(now time.Time) bool {
	m := t.fixedTimeTU(now) % DWInterval
	if m < 0 {
		m += DWInterval
	}
	return m <= DWLength
}

// InDW0 reports whether now is in a DW and that DW is a DW0 (every
// 2^14th DW, a period of about 2.4 hours used for less-frequent
// bookkeeping).
func (t *Timer) InDW0(now time.Time) bool {
	if !t.InDW(now) {
		return false
	}
	idx := t.fixedTimeTU(now) / DWInterval
	return idx&0x3FFF == 0
}

// NextDWUsec returns the microseconds until the next DW start. If now is
// already inside a DW, it is the time to the *next* one, per §4.2's
// formula — callers check InDW separately when they need "time left in
// the current DW" semantics (see DWEndUsec).
func (t *Timer) NextDWUsec(now time.Time) int64 {
	tu := t.SyncedTimeTU(now)
	m := tu % DWInterval
	if m < 0 {
		m += DWInterval
	}
	return (DWInterval - m) * tuMicros
}

// DWEndUsec returns the microseconds until the current DW closes if now
// is inside one, otherwise the microseconds until the next DW start plus
// its length.
func (t *Timer) DWEndUsec(now time.Time) int64 {
	if t.InDW(now) {
		tu := t.fixedTimeTU(now) % DWInterval
		if tu < 0 {
			tu += DWInterval
		}
		remaining := DWLength - tu
		if remaining < 0 {
			remaining = 0
		}
		return remaining * tuMicros
	}
	return t.NextDWUsec(now) + DWLength*tuMicros
}

// SyncTime hard re-bases the epoch toward a peer's reported timestamp:
// base_time += synced_time(now) - peer_ts.
func (t *Timer) SyncTime(now time.Time, peerTimestampUsec int64) {
	delta := t.SyncedTimeUsec(now) - peerTimestampUsec
	t.baseTimeUsec += delta
}

// SyncError folds a peer timestamp delta into the moving-average error,
// rejecting outliers whose magnitude exceeds one DW interval.
func (t *Timer) SyncError(now time.Time, peerTimestampUsec int64) {
	delta := t.SyncedTimeUsec(now) - peerTimestampUsec
	if abs64(delta) > DWInterval*tuMicros {
		return
	}
	if t.errorN == errorRingSize {
		t.errorSum -= t.errorRing[t.errorNext]
	} else {
		t.errorN++
	}
	t.errorRing[t.errorNext] = delta
	t.errorSum += delta
	t.errorNext = (t.errorNext + 1) % errorRingSize
}

// WarmupDone reports whether the 120s startup warmup has elapsed or was
// cancelled by observing a beacon.
func (t *Timer) WarmupDone(now time.Time) bool {
	if t.warmupDone || now.After(t.warmupUntil) || now.Equal(t.warmupUntil) {
		return true
	}
	return false
}

// CancelWarmup marks the warmup one-shot done immediately, as happens
// the moment any beacon is observed.
func (t *Timer) CancelWarmup() { t.warmupDone = true }

// InitialScanDone reports whether the 1s initial passive scan has
// elapsed or was cancelled.
func (t *Timer) InitialScanDone(now time.Time) bool {
	if t.scanDone || now.After(t.scanUntil) || now.Equal(t.scanUntil) {
		return true
	}
	return false
}

// CancelInitialScan marks the initial-scan one-shot done immediately.
func (t *Timer) CancelInitialScan() { t.scanDone = true }

// ShiftBase offsets the epoch by offsetTU time units, advancing it for a
// positive offset and rewinding it for a negative one. Used by the
// operator console's "peer ADDR set timer TU" command to desynchronize
// a peer's Timer (its pre-shift clock is kept in Peer.OldTimer) for the
// research mode in §9.
func (t *Timer) ShiftBase(offsetTU int64) {
	t.baseTimeUsec += offsetTU * tuMicros
}

// BaseUsec returns the timer's current epoch, in microseconds.
func (t *Timer) BaseUsec() int64 { return t.baseTimeUsec }

// NewTimerAt creates a Timer whose epoch is baseUsec rather than now,
// with the same warmup/initial-scan one-shots NewTimer arms. Used to
// snapshot a peer's pre-shift clock before the console's "set timer"
// command rebases it.
func NewTimerAt(baseUsec int64, now time.Time) *Timer {
	t := NewTimer(now)
	t.baseTimeUsec = baseUsec
	return t
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

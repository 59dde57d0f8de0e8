package nan

import "time"

// DesyncState is the experimental clock-shifting / man-in-the-middle
// research mode (§9). It is not part of the protocol; its only
// protocol-visible footprints are the scheduler's per-peer DW iteration
// (scheduler.go's flushBuffers) and the OldTimer shadow on each Peer.
type DesyncState struct {
	Enabled bool

	// ShiftUsec is the fixed offset, relative to the current time, at
	// which ShadowTimer starts a peer's OldTimer, simulating a
	// desynchronized observer for the research demonstration.
	ShiftUsec int64
}

// NewDesyncState creates a disabled desync module; call Enable to arm
// it.
func NewDesyncState() *DesyncState { return &DesyncState{} }

// Enable arms the desync experiment with the given clock shift.
func (d *DesyncState) Enable(shiftUsec int64) {
	d.Enabled = true
	d.ShiftUsec = shiftUsec
}

// Disable turns the desync experiment off without discarding the
// configured shift, so a later Enable() call resumes with the same
// offset.
func (d *DesyncState) Disable() {
	d.Enabled = false
}

// ShadowTimer lazily creates and returns a peer's OldTimer: a new Timer
// whose epoch is now shifted by ShiftUsec. An existing OldTimer is
// returned unchanged.
func (d *DesyncState) ShadowTimer(p *Peer, now time.Time) *Timer {
	if p.OldTimer == nil {
		p.OldTimer = NewTimer(now.Add(time.Duration(d.ShiftUsec) * time.Microsecond))
	}
	return p.OldTimer
}

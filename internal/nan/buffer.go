package nan

import "errors"

// DefaultOutboundCapacity is the bounded FIFO capacity for both the
// per-device and per-peer outbound frame buffers (§5: "per-device 16,
// per-peer 16").
const DefaultOutboundCapacity = 16

// ErrBufferFull is returned by FrameBuffer.Push when the bounded FIFO
// has no room; the caller drops the frame and logs a warning per the
// resource-exhaustion policy in §7.
var ErrBufferFull = errors.New("nan: outbound buffer full")

// FrameBuffer is a bounded FIFO of prebuilt outbound frames awaiting a
// DW flush. It is drained only inside a DW (§3 invariant 6).
type FrameBuffer struct {
	frames   [][]byte
	capacity int
}

// NewFrameBuffer creates an empty buffer with the given bounded capacity.
func NewFrameBuffer(capacity int) *FrameBuffer {
	return &FrameBuffer{capacity: capacity}
}

// Push enqueues frame, returning ErrBufferFull if the buffer is already
// at capacity.
func (b *FrameBuffer) Push(frame []byte) error {
	if len(b.frames) >= b.capacity {
		return ErrBufferFull
	}
	b.frames = append(b.frames, frame)
	return nil
}

// Len returns the number of buffered frames.
func (b *FrameBuffer) Len() int { return len(b.frames) }

// Drain removes and returns every buffered frame, in FIFO order.
func (b *FrameBuffer) Drain() [][]byte {
	out := b.frames
	b.frames = nil
	return out
}

package radio

import (
	"net/netip"

	"github.com/nan80211/nand/internal/wire"
)

// LoopbackWlanLink is an in-memory WlanLink for tests: frames sent on
// one end appear on Receive of the paired end, with no real socket
// involved.
type LoopbackWlanLink struct {
	out    chan []byte
	in     chan []byte
	closed chan struct{}
}

// NewLoopbackPair creates two LoopbackWlanLink values wired to each
// other: a's Send delivers to b's Receive and vice versa.
func NewLoopbackPair(capacity int) (a, b *LoopbackWlanLink) {
	ab := make(chan []byte, capacity)
	ba := make(chan []byte, capacity)
	a = &LoopbackWlanLink{out: ab, in: ba, closed: make(chan struct{})}
	b = &LoopbackWlanLink{out: ba, in: ab, closed: make(chan struct{})}
	return a, b
}

// Send implements WlanLink.
func (l *LoopbackWlanLink) Send(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case l.out <- cp:
		return nil
	case <-l.closed:
		return ErrClosed
	}
}

// Receive implements WlanLink.
func (l *LoopbackWlanLink) Receive() ([]byte, error) {
	select {
	case frame := <-l.in:
		return frame, nil
	case <-l.closed:
		return nil, ErrClosed
	}
}

// Close implements WlanLink.
func (l *LoopbackWlanLink) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}

// LoopbackHostLink is an in-memory HostLink for tests.
type LoopbackHostLink struct {
	frames chan []byte
	closed chan struct{}
}

// NewLoopbackHostLink creates a LoopbackHostLink with the given
// buffering capacity.
func NewLoopbackHostLink(capacity int) *LoopbackHostLink {
	return &LoopbackHostLink{
		frames: make(chan []byte, capacity),
		closed: make(chan struct{}),
	}
}

// Send implements HostLink; it makes frame available to a subsequent
// Receive (loopback, not a real host stack).
func (l *LoopbackHostLink) Send(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case l.frames <- cp:
		return nil
	case <-l.closed:
		return ErrClosed
	}
}

// Receive implements HostLink.
func (l *LoopbackHostLink) Receive() ([]byte, error) {
	select {
	case frame := <-l.frames:
		return frame, nil
	case <-l.closed:
		return nil, ErrClosed
	}
}

// Close implements HostLink.
func (l *LoopbackHostLink) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}

// NopNeighborTable implements NeighborTable with no-ops, for tests and
// for configurations with no host-OS neighbor table to maintain.
type NopNeighborTable struct{}

func (NopNeighborTable) AddNeighbor(int, wire.EtherAddr, netip.Addr) error { return nil }
func (NopNeighborTable) RemoveNeighbor(int, netip.Addr) error              { return nil }

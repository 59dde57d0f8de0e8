package radio_test

import (
	"net/netip"
	"testing"

	"github.com/nan80211/nand/internal/nan"
	"github.com/nan80211/nand/internal/radio"
	"github.com/nan80211/nand/internal/wire"
)

type recordingNeighborTable struct {
	added   netip.Addr
	removed netip.Addr
}

func (r *recordingNeighborTable) AddNeighbor(_ int, _ wire.EtherAddr, ipv6 netip.Addr) error {
	r.added = ipv6
	return nil
}

func (r *recordingNeighborTable) RemoveNeighbor(_ int, ipv6 netip.Addr) error {
	r.removed = ipv6
	return nil
}

func TestNeighborObserverDerivesLinkLocalAddress(t *testing.T) {
	t.Parallel()

	ether := wire.EtherAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	p := &nan.Peer{Addr: ether}
	table := &recordingNeighborTable{}
	obs := radio.NewNeighborObserver(table, 3, nil)

	obs.OnPeerAdded(p)
	b := table.added.As16()
	if b[0] != 0xfe || b[1] != 0x80 {
		t.Errorf("address does not carry the fe80:: link-local prefix: %v", table.added)
	}
	if b[11] != 0xff || b[12] != 0xfe {
		t.Errorf("address does not carry the ff:fe EUI-64 marker: %v", table.added)
	}
	if b[8] != ether[0]^0x02 {
		t.Errorf("universal/local bit not flipped: got %#x, want %#x", b[8], ether[0]^0x02)
	}

	obs.OnPeerRemoved(p)
	if table.removed != table.added {
		t.Errorf("OnPeerRemoved address = %v, want %v", table.removed, table.added)
	}
}

func TestLoopbackWlanLinkPair(t *testing.T) {
	t.Parallel()

	a, b := radio.NewLoopbackPair(4)
	defer a.Close()
	defer b.Close()

	frame := []byte{0x01, 0x02, 0x03}
	if err := a.Send(frame); err != nil {
		t.Fatalf("a.Send: %v", err)
	}

	got, err := b.Receive()
	if err != nil {
		t.Fatalf("b.Receive: %v", err)
	}
	if len(got) != len(frame) || got[0] != frame[0] {
		t.Errorf("b.Receive() = %v, want %v", got, frame)
	}

	if err := b.Send(frame); err != nil {
		t.Fatalf("b.Send: %v", err)
	}
	if _, err := a.Receive(); err != nil {
		t.Fatalf("a.Receive: %v", err)
	}
}

func TestLoopbackWlanLinkClosed(t *testing.T) {
	t.Parallel()

	a, b := radio.NewLoopbackPair(1)
	b.Close()

	if err := a.Close(); err != nil {
		t.Fatalf("a.Close: %v", err)
	}
	if _, err := a.Receive(); err != radio.ErrClosed {
		t.Errorf("a.Receive() after close = %v, want ErrClosed", err)
	}
}

func TestLoopbackHostLink(t *testing.T) {
	t.Parallel()

	l := radio.NewLoopbackHostLink(2)
	defer l.Close()

	frame := []byte{0xaa, 0xbb}
	if err := l.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := l.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(got) != 2 || got[0] != 0xaa {
		t.Errorf("Receive() = %v, want %v", got, frame)
	}
}

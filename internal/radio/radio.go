// Package radio implements the link interfaces spec.md §6 calls for:
// monitor-mode radio I/O, the host-side TAP bridge, and the host-OS
// neighbor table hooks the peer table's PeerObserver drives.
package radio

import (
	"errors"
	"net/netip"

	"github.com/nan80211/nand/internal/wire"
)

// ErrClosed is returned by Send/Receive once the underlying link has
// been closed.
var ErrClosed = errors.New("radio: link closed")

// WlanLink is the monitor-mode radio I/O contract (spec.md §6
// wlan_send/wlan_receive): inject and capture fully-formed
// radiotap+802.11+payload frames.
type WlanLink interface {
	// Send injects a fully-formed frame, radiotap header included.
	Send(frame []byte) error

	// Receive blocks until a captured frame, radiotap header intact,
	// is available.
	Receive() ([]byte, error)

	Close() error
}

// HostLink is the host-OS bridge contract (spec.md §6
// host_send/host_receive): layer-2 frames to/from the host network
// stack on a TAP device. The TAP implementation does not set the
// interface MAC to the device's self address.
type HostLink interface {
	// Send writes a layer-2 frame to the host stack.
	Send(frame []byte) error

	// Receive blocks until a layer-2 frame from the host stack is
	// available.
	Receive() ([]byte, error)

	Close() error
}

// NeighborTable is the host-OS neighbor table hook contract (spec.md §6
// neighbor_add/neighbor_remove), invoked by PeerObserver on peer
// add/remove.
type NeighborTable interface {
	AddNeighbor(ifindex int, ether wire.EtherAddr, ipv6 netip.Addr) error
	RemoveNeighbor(ifindex int, ipv6 netip.Addr) error
}

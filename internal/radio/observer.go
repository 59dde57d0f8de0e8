package radio

import (
	"log/slog"
	"net/netip"

	"github.com/nan80211/nand/internal/nan"
)

// NeighborObserver adapts a NeighborTable into nan.PeerObserver,
// replacing the source's peer-add/peer-remove function-pointer
// callback pair (spec.md §9 "Callback graph"). It is the sole
// implementation the peer table holds as its collaborator.
type NeighborObserver struct {
	table   NeighborTable
	ifindex int
	logger  *slog.Logger
}

// NewNeighborObserver creates a NeighborObserver that drives table's
// neighbor entries for peers seen on the interface ifindex.
func NewNeighborObserver(table NeighborTable, ifindex int, logger *slog.Logger) *NeighborObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &NeighborObserver{table: table, ifindex: ifindex, logger: logger}
}

// OnPeerAdded implements nan.PeerObserver.
func (o *NeighborObserver) OnPeerAdded(p *nan.Peer) {
	addr := netip.AddrFrom16(p.IPv6LinkLocal())
	if err := o.table.AddNeighbor(o.ifindex, p.Addr, addr); err != nil {
		o.logger.Warn("neighbor_add failed",
			slog.String("peer", p.Addr.String()),
			slog.String("error", err.Error()))
	}
}

// OnPeerRemoved implements nan.PeerObserver.
func (o *NeighborObserver) OnPeerRemoved(p *nan.Peer) {
	addr := netip.AddrFrom16(p.IPv6LinkLocal())
	if err := o.table.RemoveNeighbor(o.ifindex, addr); err != nil {
		o.logger.Warn("neighbor_remove failed",
			slog.String("peer", p.Addr.String()),
			slog.String("error", err.Error()))
	}
}

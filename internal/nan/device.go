package nan

import (
	"crypto/rand"
	"time"

	"github.com/nan80211/nand/internal/wire"
)

// ClusterIDBasePrefix is the fixed NAN cluster id prefix; the last two
// bytes are randomized at startup (§6).
var ClusterIDBasePrefix = [4]byte{0x50, 0x6F, 0x9A, 0x01}

// RandomClusterID builds a cluster id from the fixed prefix and two
// random trailing bytes.
func RandomClusterID() wire.EtherAddr {
	var id wire.EtherAddr
	copy(id[:4], ClusterIDBasePrefix[:])
	_, _ = rand.Read(id[4:])
	return id
}

// Device is the daemon's singleton state: the synchronization timer,
// election/sync state, peer table, service registries, event bus, and
// outbound frame buffer (§3).
type Device struct {
	SelfAddress      wire.EtherAddr
	InterfaceAddress wire.EtherAddr
	ClusterID        wire.EtherAddr

	seq uint16

	Timer    *Timer
	Election *Election
	Peers    *Table
	Services *Registry
	Events   *EventBus

	Buffer *FrameBuffer

	Desync *DesyncState // nil unless the experimental mode is enabled (§9)
}

// NewDevice creates a Device rooted at self, with a freshly randomized
// cluster id and a MASTER election state, at startup time now.
func NewDevice(self wire.EtherAddr, observer PeerObserver, now time.Time) *Device {
	clusterID := RandomClusterID()
	d := &Device{
		SelfAddress:      self,
		InterfaceAddress: self,
		ClusterID:        clusterID,
		Timer:            NewTimer(now),
		Election:         NewElection(self, clusterID, 0, randomByte),
		Peers:            NewTable(observer),
		Services:         NewRegistry(),
		Events:           NewEventBus(),
		Buffer:           NewFrameBuffer(DefaultOutboundCapacity),
	}
	return d
}

func randomByte() uint8 {
	var b [1]byte
	_, _ = rand.Read(b[:])
	return b[0]
}

// NextSequence returns the next IEEE 802.11 sequence number, monotonic
// per device, shifted into place for SeqCtrl.
func (d *Device) NextSequence() uint16 {
	d.seq++
	return d.seq << 4
}

// baseHeader builds the common 802.11 management header fields shared
// by every frame this device emits: BSSID is the cluster id.
func (d *Device) baseHeader(dst wire.EtherAddr, subtype uint8) wire.Header {
	return wire.Header{
		FrameControl: wire.MakeFrameControl(wire.FrameTypeMgmt, subtype),
		Addr1:        dst,
		Addr2:        d.SelfAddress,
		Addr3:        d.ClusterID,
		SeqCtrl:      d.NextSequence(),
	}
}

var broadcastAddr = wire.EtherAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// BuildDiscoveryBeacon constructs a discovery beacon frame (sent outside
// a DW) carrying no NAN attributes beyond Master Indication.
func (d *Device) BuildDiscoveryBeacon(now time.Time) []byte {
	return d.buildBeacon(now, wire.BeaconIntervalDiscovery)
}

// BuildSyncBeacon constructs a sync beacon frame (sent at DW start)
// carrying Master Indication and Cluster attributes.
func (d *Device) BuildSyncBeacon(now time.Time) []byte {
	return d.buildBeacon(now, wire.BeaconIntervalSync)
}

func (d *Device) buildBeacon(now time.Time, interval uint16) []byte {
	mi := wire.MasterIndication{
		Preference:   d.Election.MasterPreference,
		RandomFactor: d.Election.RandomFactor,
	}
	attrs := []wire.Attribute{
		{ID: wire.AttrMasterIndication, Value: mi.Marshal()},
	}
	if interval == wire.BeaconIntervalSync {
		cl := wire.Cluster{
			AnchorMasterRank: d.Election.AnchorMasterRank,
			HopCount:         d.Election.HopCount,
			AMBTT:            d.Election.AMBTT,
		}
		attrs = append(attrs, wire.Attribute{ID: wire.AttrCluster, Value: cl.Marshal()})
	}

	bcn := wire.Beacon{
		Header: d.baseHeader(broadcastAddr, wire.SubtypeBeacon),
		Body: wire.BeaconBody{
			Timestamp:      uint64(d.Timer.SyncedTimeUsec(now)),
			BeaconInterval: interval,
			Capability:     wire.BeaconCapability,
		},
		Attributes: attrs,
	}
	return wire.MarshalBeacon(bcn)
}

// BuildServiceDiscoveryFrame constructs the action frame carrying one
// Service Descriptor per announce candidate.
func (d *Device) BuildServiceDiscoveryFrame(candidates []AnnounceCandidate) []byte {
	var attrs []wire.Attribute
	for _, c := range candidates {
		sd := wire.ServiceDescriptor{
			ServiceID:  c.Service.ServiceID,
			InstanceID: c.Service.Instance,
			Control:    c.Type,
		}
		if len(c.Service.Info) > 0 {
			sd.Control |= wire.SDControlServiceInfoPresent
			sd.ServiceInfo = c.Service.Info
		}
		attrs = append(attrs, wire.Attribute{ID: wire.AttrServiceDescriptor, Value: sd.Marshal()})
	}
	action := wire.Action{
		Header:     d.baseHeader(broadcastAddr, wire.SubtypeAction),
		Kind:       wire.ActionServiceDiscovery,
		Attributes: attrs,
	}
	return wire.MarshalAction(action)
}

// BuildFollowUp constructs a unicast Follow-Up action frame for svc
// carrying payload, addressed to dst. The descriptor's service_id must
// match svc's so the receiver's on_received_descriptor match-by-id
// (§4.5) finds the right local service; RequestorInstanceID is the
// instance id the peer originally advertised.
func (d *Device) BuildFollowUp(dst wire.EtherAddr, svc *Service, peerInstance wire.InstanceID, payload []byte) []byte {
	sd := wire.ServiceDescriptor{
		ServiceID:           svc.ServiceID,
		InstanceID:          svc.Instance,
		RequestorInstanceID: peerInstance,
		Control:             wire.SDTypeFollowUp | wire.SDControlServiceInfoPresent,
		ServiceInfo:         payload,
	}
	action := wire.Action{
		Header:     d.baseHeader(dst, wire.SubtypeAction),
		Kind:       wire.ActionServiceDiscovery,
		Attributes: []wire.Attribute{{ID: wire.AttrServiceDescriptor, Value: sd.Marshal()}},
	}
	return wire.MarshalAction(action)
}

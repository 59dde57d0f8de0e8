package nan

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nan80211/nand/internal/wire"
)

// RX failure taxonomy (§7 "Transient parse" / "Ignorable").
var (
	ErrTooShort                   = errors.New("nan: frame too short")
	ErrUnexpectedFormat           = errors.New("nan: unexpected frame format")
	ErrMissingMandatoryAttribute  = errors.New("nan: missing mandatory attribute")
	ErrIgnoreOUI                  = errors.New("nan: ignored, non-NAN OUI")
	ErrIgnoreFromSelf             = errors.New("nan: ignored, frame from self")
	ErrIgnoreFailedCRC            = errors.New("nan: ignored, failed FCS")
	ErrIgnoreSyncOutsideDW        = errors.New("nan: ignored, sync beacon outside DW")
	ErrUnexpectedType             = errors.New("nan: unexpected frame type/subtype")
)

// RX is the receive pipeline: radiotap/802.11 parsing, dispatch by
// frame subtype, and the state updates §4.7 describes. It holds the
// collaborators it mutates; RX itself carries no state of its own.
type RX struct {
	dev    *Device
	logger *slog.Logger
}

// NewRX creates an RX pipeline over dev.
func NewRX(dev *Device, logger *slog.Logger) *RX {
	if logger == nil {
		logger = slog.Default()
	}
	return &RX{dev: dev, logger: logger}
}

// Receive processes one captured frame, radiotap header intact. All
// errors are recoverable: the frame is dropped and state is unchanged
// beyond any side effect already committed before the failure (§4.7,
// §7).
func (r *RX) Receive(raw []byte, now time.Time) error {
	info, err := wire.ParseRadiotap(raw)
	if err != nil {
		return ErrTooShort
	}
	if info.Flags&wire.RadiotapFlagBadFCS != 0 {
		return ErrIgnoreFailedCRC
	}

	buf := wire.NewBorrowing(raw[info.HeaderLen:])
	if info.Flags&wire.RadiotapFlagFCS != 0 {
		buf.Take(4)
	}

	hdr := wire.UnmarshalHeader(buf)
	if buf.Err() != nil {
		return ErrTooShort
	}
	if hdr.Addr2 == r.dev.SelfAddress {
		return ErrIgnoreFromSelf
	}

	switch {
	case hdr.FrameType() == wire.FrameTypeMgmt && hdr.FrameSubtype() == wire.SubtypeBeacon:
		return r.rxBeacon(hdr, buf, info, now)
	case hdr.FrameType() == wire.FrameTypeMgmt && hdr.FrameSubtype() == wire.SubtypeAction:
		return r.rxAction(hdr, buf, now)
	default:
		return ErrUnexpectedType
	}
}

func (r *RX) rxBeacon(hdr wire.Header, buf *wire.Buffer, info wire.RadiotapInfo, now time.Time) error {
	body, attrs, err := wire.ParseBeaconBody(buf)
	if err != nil {
		return err
	}
	kind := wire.KindOfInterval(body.BeaconInterval)

	peersBefore := r.dev.Peers.Len()
	peer, _ := r.dev.Peers.AddOrUpdate(hdr.Addr2, hdr.Addr3, now)

	r.dev.Timer.CancelWarmup()
	r.dev.Timer.CancelInitialScan()

	rssi := int8(0)
	if info.HasRSSI {
		rssi = info.RSSI
	}
	r.dev.Peers.SetBeaconInfo(peer, rssi, int64(body.Timestamp))
	peer.LastBeaconTime = now
	peer.LastUpdate = now

	var mi wire.MasterIndication
	var cluster wire.Cluster
	haveCluster := false
	for _, a := range attrs {
		switch a.ID {
		case wire.AttrMasterIndication:
			if v, ok := wire.UnmarshalMasterIndication(a.Value); ok {
				mi = v
				r.dev.Peers.SetMasterIndication(peer, mi.Preference, mi.RandomFactor)
			}
		case wire.AttrCluster:
			if v, ok := wire.UnmarshalCluster(a.Value); ok {
				cluster = v
				haveCluster = true
				r.dev.Peers.SetAnchorInfo(peer, cluster.AnchorMasterRank, cluster.AMBTT, cluster.HopCount)
			}
		}
	}

	isFirstPeer := peersBefore == 0
	if hdr.Addr3 != r.dev.ClusterID || isFirstPeer {
		grade := GradeOf(mi.Preference, int64(body.Timestamp))
		if r.dev.Election.MaybeJoinCluster(r.dev.Timer, now, hdr.Addr3, grade, int64(body.Timestamp)) {
			r.dev.ClusterID = hdr.Addr3
		}
	} else if peer.MasterRank() == r.dev.Election.AnchorMasterRank {
		r.dev.Timer.SyncTime(now, int64(body.Timestamp))
	} else {
		r.dev.Timer.SyncError(now, int64(body.Timestamp))
	}

	if kind == wire.BeaconSync && haveCluster {
		syncedTU := r.dev.Timer.SyncedTimeTU(now)
		r.dev.Election.SelectAnchorMaster(peer, cluster.AnchorMasterRank, cluster.AMBTT, cluster.HopCount, syncedTU)
	}

	return nil
}

func (r *RX) rxAction(hdr wire.Header, buf *wire.Buffer, now time.Time) error {
	action, err := wire.ParseActionBody(buf)
	if err != nil {
		return ErrIgnoreOUI
	}
	if action.Kind == wire.ActionServiceDiscovery {
		return r.rxServiceDiscovery(hdr, action.Attributes, now)
	}
	r.logger.Debug("ignoring NAN action frame", slog.Int("oui_subtype", int(action.OUISubtype)))
	return nil
}

// OutcomeReason maps a Receive error (or nil) to the metric label value
// the collector's RXFrames counter records it under (§7's taxonomy),
// e.g. "ok" for a frame that was fully processed without error.
func OutcomeReason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTooShort):
		return "too_short"
	case errors.Is(err, ErrUnexpectedFormat):
		return "unexpected_format"
	case errors.Is(err, ErrMissingMandatoryAttribute):
		return "missing_mandatory_attribute"
	case errors.Is(err, ErrIgnoreOUI):
		return "ignore_oui"
	case errors.Is(err, ErrIgnoreFromSelf):
		return "ignore_from_self"
	case errors.Is(err, ErrIgnoreFailedCRC):
		return "ignore_failed_crc"
	case errors.Is(err, ErrIgnoreSyncOutsideDW):
		return "ignore_sync_outside_dw"
	case errors.Is(err, ErrUnexpectedType):
		return "unexpected_type"
	default:
		return "error"
	}
}

func (r *RX) rxServiceDiscovery(hdr wire.Header, attrs []wire.Attribute, now time.Time) error {
	peer := r.dev.Peers.Get(hdr.Addr2)
	for _, a := range attrs {
		if a.ID != wire.AttrServiceDescriptor {
			continue
		}
		d, ok := wire.UnmarshalServiceDescriptor(a.Value)
		if !ok {
			continue
		}
		r.dev.Services.OnReceivedDescriptor(r.dev.Events, hdr.Addr2, hdr.Addr1, r.dev.SelfAddress, d)
		if d.Type() == wire.SDTypeFollowUp && peer != nil {
			peer.LastFollowUpTime = now
		}
	}
	return nil
}

package wire

import "errors"

// ErrBadHeader is returned when an 802.11 header fails to parse.
var ErrBadHeader = errors.New("wire: malformed 802.11 header")

const HeaderLen = 24

// Frame types/subtypes the daemon cares about.
const (
	FrameTypeMgmt = 0

	SubtypeBeacon = 8
	SubtypeAction = 13
)

// Header is the fixed 24-byte IEEE 802.11 management-frame header: FC,
// duration, three addresses, and sequence control.
type Header struct {
	FrameControl uint16
	DurationID   uint16
	Addr1        EtherAddr // destination
	Addr2        EtherAddr // source
	Addr3        EtherAddr // BSSID, carries the NAN cluster_id
	SeqCtrl      uint16    // sequence number left-shifted by 4
}

// FrameType extracts the type field (bits 2-3) from FrameControl.
func (h Header) FrameType() uint8 { return uint8((h.FrameControl >> 2) & 0x3) }

// FrameSubtype extracts the subtype field (bits 4-7) from FrameControl.
func (h Header) FrameSubtype() uint8 { return uint8((h.FrameControl >> 4) & 0xF) }

// SequenceNumber extracts the 12-bit sequence number from SeqCtrl.
func (h Header) SequenceNumber() uint16 { return h.SeqCtrl >> 4 }

// MakeFrameControl packs protocol version 0 with the given type/subtype.
func MakeFrameControl(frameType, subtype uint8) uint16 {
	return uint16(frameType&0x3)<<2 | uint16(subtype&0xF)<<4
}

// MarshalHeader appends the 24-byte header to b.
func MarshalHeader(b *Buffer, h Header) {
	b.WriteU16LE(h.FrameControl)
	b.WriteU16LE(h.DurationID)
	b.WriteEther(h.Addr1)
	b.WriteEther(h.Addr2)
	b.WriteEther(h.Addr3)
	b.WriteU16LE(h.SeqCtrl)
}

// UnmarshalHeader reads the 24-byte header from the front of b.
func UnmarshalHeader(b *Buffer) Header {
	var h Header
	h.FrameControl = b.ReadU16LE()
	h.DurationID = b.ReadU16LE()
	h.Addr1 = b.ReadEther()
	h.Addr2 = b.ReadEther()
	h.Addr3 = b.ReadEther()
	h.SeqCtrl = b.ReadU16LE()
	return h
}

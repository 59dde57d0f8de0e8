package wire

import (
	"errors"
	"hash/crc32"
)

// ErrBadVendorIE is returned when a beacon's vendor element does not
// carry the NAN OUI/OUI-type.
var ErrBadVendorIE = errors.New("wire: missing or malformed NAN vendor element")

// BeaconBody is the fixed portion of a NAN beacon, before attributes.
type BeaconBody struct {
	Timestamp      uint64 // synced-time at emission
	BeaconInterval uint16 // 100 TU discovery, 512 TU sync
	Capability     uint16
}

// Beacon is a fully parsed or about-to-be-built NAN beacon: header, fixed
// body, and attribute list.
type Beacon struct {
	Header     Header
	Body       BeaconBody
	Attributes []Attribute
}

// MarshalBeacon builds the complete frame: radiotap + 802.11 header +
// beacon body + vendor element + attributes + FCS. The sequence number
// is taken as-is from bcn.Header.SeqCtrl.
func MarshalBeacon(bcn Beacon) []byte {
	body := NewOwned(64)
	body.WriteU64LE(bcn.Body.Timestamp)
	body.WriteU16LE(bcn.Body.BeaconInterval)
	body.WriteU16LE(bcn.Body.Capability)

	// Vendor-specific element wrapping the NAN attribute stream.
	attrBuf := NewOwned(128)
	for _, a := range bcn.Attributes {
		WriteAttribute(attrBuf, a.ID, a.Value)
	}
	ieValue := NewOwned(4 + attrBuf.Len())
	ieValue.WriteRaw(NANOUI[:])
	ieValue.WriteU8(OUITypeBeacon)
	ieValue.WriteRaw(attrBuf.All())

	body.WriteU8(0xdd)
	body.WriteU8(uint8(ieValue.Len()))
	body.WriteRaw(ieValue.All())

	frame := NewOwned(32 + body.Len())
	MarshalHeader(frame, bcn.Header)
	frame.WriteRaw(body.All())
	frame.WriteU32LE(crc32.ChecksumIEEE(frame.All())) // FCS, as the radiotap FCS flag declares

	radiotap := BuildRadiotap(true, 2)
	out := make([]byte, 0, len(radiotap)+frame.Len())
	out = append(out, radiotap...)
	out = append(out, frame.All()...)
	return out
}

// ParseBeaconBody parses the fixed body and NAN attributes that follow
// the 802.11 header in a beacon frame. The frame must already have had
// its radiotap header and 802.11 header stripped by the caller.
func ParseBeaconBody(b *Buffer) (BeaconBody, []Attribute, error) {
	var body BeaconBody
	body.Timestamp = b.ReadU64LE()
	body.BeaconInterval = b.ReadU16LE()
	body.Capability = b.ReadU16LE()

	eid := b.ReadU8()
	elen := b.ReadU8()
	if b.Err() != nil || eid != 0xdd {
		return body, nil, ErrBadVendorIE
	}
	ieValue := b.ReadRaw(int(elen))
	if b.Err() != nil || len(ieValue) < 4 {
		return body, nil, ErrBadVendorIE
	}
	if ieValue[0] != NANOUI[0] || ieValue[1] != NANOUI[1] || ieValue[2] != NANOUI[2] || ieValue[3] != OUITypeBeacon {
		return body, nil, ErrBadVendorIE
	}

	attrBuf := NewBorrowing(ieValue[4:])
	attrs := ParseAttributes(attrBuf)
	return body, attrs, nil
}

package wire

import (
	"errors"
	"hash/crc32"
)

// ErrBadAction is returned when an action frame fails to carry the NAN
// category/action/OUI fields §4.1 requires.
var ErrBadAction = errors.New("wire: malformed NAN action frame")

const (
	CategoryPublicAction = 0x04
	ActionVendorSpecific = 0x09
)

// ActionKind distinguishes the two OUI types the core emits and parses.
type ActionKind uint8

const (
	ActionServiceDiscovery ActionKind = iota // OUI type 0x13, no oui_subtype byte
	ActionNAN                                // OUI type 0x18, carries an oui_subtype byte
)

// Action is a fully parsed or about-to-be-built NAN action frame.
type Action struct {
	Header     Header
	Kind       ActionKind
	OUISubtype uint8 // meaningful only when Kind == ActionNAN
	Attributes []Attribute
}

// MarshalAction builds the complete frame: radiotap + 802.11 header +
// category/action/OUI + attributes + FCS.
func MarshalAction(a Action) []byte {
	body := NewOwned(64)
	body.WriteU8(CategoryPublicAction)
	body.WriteU8(ActionVendorSpecific)
	body.WriteRaw(NANOUI[:])
	switch a.Kind {
	case ActionServiceDiscovery:
		body.WriteU8(OUITypeServiceDiscovery)
	case ActionNAN:
		body.WriteU8(OUITypeNANAction)
		body.WriteU8(a.OUISubtype)
	}
	for _, attr := range a.Attributes {
		WriteAttribute(body, attr.ID, attr.Value)
	}

	frame := NewOwned(32 + body.Len())
	MarshalHeader(frame, a.Header)
	frame.WriteRaw(body.All())
	frame.WriteU32LE(crc32.ChecksumIEEE(frame.All())) // FCS, as the radiotap FCS flag declares

	radiotap := BuildRadiotap(true, 2)
	out := make([]byte, 0, len(radiotap)+frame.Len())
	out = append(out, radiotap...)
	out = append(out, frame.All()...)
	return out
}

// ParseActionBody parses category/action/OUI and the attribute stream
// that follows the 802.11 header in an action frame.
func ParseActionBody(b *Buffer) (Action, error) {
	var a Action
	category := b.ReadU8()
	action := b.ReadU8()
	oui := b.ReadRaw(3)
	if b.Err() != nil || category != CategoryPublicAction || action != ActionVendorSpecific {
		return a, ErrBadAction
	}
	if oui[0] != NANOUI[0] || oui[1] != NANOUI[1] || oui[2] != NANOUI[2] {
		return a, ErrBadAction
	}
	ouiType := b.ReadU8()
	switch ouiType {
	case OUITypeServiceDiscovery:
		a.Kind = ActionServiceDiscovery
	case OUITypeNANAction:
		a.Kind = ActionNAN
		a.OUISubtype = b.ReadU8()
	default:
		return a, ErrBadAction
	}
	if b.Err() != nil {
		return a, ErrBadAction
	}
	a.Attributes = ParseAttributes(b)
	return a, nil
}

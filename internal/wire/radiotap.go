package wire

import "errors"

// ErrBadRadiotap is returned when a radiotap header fails basic
// structural validation (short buffer, unsupported version).
var ErrBadRadiotap = errors.New("wire: malformed radiotap header")

// radiotap present-bitmap bit numbers used by this codec. Only the
// fields the daemon actually emits or consumes are implemented; the size
// of any other present field is not accounted for when ParseRadiotap
// locates the fields that follow it.
const (
	rtBitTSFT          = 0
	rtBitFlags         = 1
	rtBitRate          = 2
	rtBitChannel       = 3
	rtBitAntennaSignal = 5
	rtBitAntenna       = 11
	rtBitExtPresent    = 31
)

// RadiotapFlagFCS indicates the captured frame includes a trailing FCS.
const RadiotapFlagFCS = 0x10

// RadiotapFlagBadFCS indicates the NIC reported a failed FCS check.
const RadiotapFlagBadFCS = 0x40

// RadiotapInfo holds the fields the RX path needs out of a radiotap
// header: signal strength, capture flags, and optional TSF timestamp.
type RadiotapInfo struct {
	Present   uint32
	Flags     uint8
	RSSI      int8 // antenna signal, dBm
	HasRSSI   bool
	TSFT      uint64
	HasTSFT   bool
	HeaderLen int // bytes consumed by the radiotap header
}

// ParseRadiotap reads a radiotap header from the front of b and returns
// the extracted fields plus the header's declared length.
func ParseRadiotap(b []byte) (RadiotapInfo, error) {
	var info RadiotapInfo
	if len(b) < 8 || b[0] != 0 {
		return info, ErrBadRadiotap
	}
	itLen := int(b[2]) | int(b[3])<<8
	if itLen < 8 || itLen > len(b) {
		return info, ErrBadRadiotap
	}
	present := uint32(b[4]) | uint32(b[5])<<8 | uint32(b[6])<<16 | uint32(b[7])<<24
	info.Present = present
	info.HeaderLen = itLen

	off := 8
	// A set extension bit means one more 4-byte present-word follows;
	// the daemon never emits these but must skip past them on RX.
	for present&(1<<rtBitExtPresent) != 0 {
		if off+4 > itLen {
			return info, ErrBadRadiotap
		}
		present = uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
		off += 4
	}

	align := func(n int) {
		if m := off % n; m != 0 {
			off += n - m
		}
	}
	orig := info.Present

	if orig&(1<<rtBitTSFT) != 0 {
		align(8)
		if off+8 > itLen {
			return info, ErrBadRadiotap
		}
		v := uint64(0)
		for i := 0; i < 8; i++ {
			v |= uint64(b[off+i]) << (8 * i)
		}
		info.TSFT = v
		info.HasTSFT = true
		off += 8
	}
	if orig&(1<<rtBitFlags) != 0 {
		if off+1 > itLen {
			return info, ErrBadRadiotap
		}
		info.Flags = b[off]
		off++
	}
	if orig&(1<<rtBitRate) != 0 {
		if off+1 > itLen {
			return info, ErrBadRadiotap
		}
		off++
	}
	if orig&(1<<rtBitChannel) != 0 {
		align(2)
		if off+4 > itLen {
			return info, ErrBadRadiotap
		}
		off += 4
	}
	if orig&(1<<rtBitAntennaSignal) != 0 {
		if off+1 > itLen {
			return info, ErrBadRadiotap
		}
		info.RSSI = int8(b[off])
		info.HasRSSI = true
		off++
	}
	if orig&(1<<rtBitAntenna) != 0 {
		if off+1 > itLen {
			return info, ErrBadRadiotap
		}
		off++
	}

	return info, nil
}

// BuildRadiotap emits a minimal TX radiotap header carrying Flags, Rate,
// and an antenna-signal placeholder, per §4.1's required-on-TX field set.
func BuildRadiotap(fcsPresent bool, rate uint8) []byte {
	flags := uint8(0)
	if fcsPresent {
		flags |= RadiotapFlagFCS
	}
	present := uint32(1<<rtBitFlags | 1<<rtBitRate | 1<<rtBitAntennaSignal)

	b := NewOwned(16)
	b.WriteU8(0) // version
	b.WriteU8(0) // pad
	// it_len filled in below once the body length is known.
	b.WriteU16LE(0)
	b.WriteU32LE(present)
	b.WriteU8(flags)
	b.WriteU8(rate)
	b.WriteU8(0) // antenna-signal placeholder, dBm, filled by the driver/kernel on real injection

	out := b.All()
	out[2] = uint8(len(out))
	out[3] = uint8(len(out) >> 8)
	return out
}

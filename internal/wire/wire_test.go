package wire_test

import (
	"bytes"
	"testing"

	"github.com/nan80211/nand/internal/wire"
)

func TestBufferStickyError(t *testing.T) {
	b := wire.NewCopying([]byte{0x01, 0x02})
	_ = b.ReadU8()
	_ = b.ReadU16LE() // only one byte left, should fail
	if b.Err() == nil {
		t.Fatalf("expected sticky error after short read")
	}
	// further reads must be no-ops, not panics.
	v := b.ReadU8()
	if v != 0 {
		t.Fatalf("read after sticky error should return zero value, got %d", v)
	}
}

func TestMasterRankOrdering(t *testing.T) {
	a1 := wire.EtherAddr{0x02, 0, 0, 0, 0, 0x01}
	a2 := wire.EtherAddr{0x02, 0, 0, 0, 0, 0x02}

	cases := []struct {
		mp1, rf1 uint8
		mp2, rf2 uint8
		wantGT   bool
	}{
		{200, 100, 100, 200, true},
		{100, 200, 200, 100, false},
		{100, 200, 100, 100, true},
	}
	for _, c := range cases {
		r1 := wire.ComputeMasterRank(c.mp1, c.rf1, a1)
		r2 := wire.ComputeMasterRank(c.mp2, c.rf2, a2)
		if (r1 > r2) != c.wantGT {
			t.Fatalf("rank(%d,%d) > rank(%d,%d) = %v, want %v", c.mp1, c.rf1, c.mp2, c.rf2, r1 > r2, c.wantGT)
		}
	}
}

// TestAttributeRoundTrip implements scenario S6.
func TestAttributeRoundTrip(t *testing.T) {
	mi := wire.MasterIndication{Preference: 200, RandomFactor: 100}
	cl := wire.Cluster{AnchorMasterRank: 0x11223344AABBCCDD, HopCount: 2, AMBTT: 0xDEADBEEF}

	buf := wire.NewOwned(64)
	wire.WriteAttribute(buf, wire.AttrMasterIndication, mi.Marshal())
	wire.WriteAttribute(buf, wire.AttrCluster, cl.Marshal())

	parseBuf := wire.NewBorrowing(buf.All())
	attrs := wire.ParseAttributes(parseBuf)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}

	gotMI, ok := wire.UnmarshalMasterIndication(attrs[0].Value)
	if !ok || gotMI != mi {
		t.Fatalf("master indication round-trip mismatch: got %+v", gotMI)
	}
	gotCl, ok := wire.UnmarshalCluster(attrs[1].Value)
	if !ok || gotCl != cl {
		t.Fatalf("cluster round-trip mismatch: got %+v", gotCl)
	}
}

func TestBeaconRoundTrip(t *testing.T) {
	hdr := wire.Header{
		FrameControl: wire.MakeFrameControl(wire.FrameTypeMgmt, wire.SubtypeBeacon),
		Addr1:        wire.EtherAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		Addr2:        wire.EtherAddr{0x02, 0, 0, 0, 0, 0x01},
		Addr3:        wire.EtherAddr{0x50, 0x6F, 0x9A, 0x01, 0xAA, 0xBB},
	}
	bcn := wire.Beacon{
		Header: hdr,
		Body: wire.BeaconBody{
			Timestamp:      500000,
			BeaconInterval: wire.BeaconIntervalSync,
			Capability:     wire.BeaconCapability,
		},
		Attributes: []wire.Attribute{
			{ID: wire.AttrMasterIndication, Value: wire.MasterIndication{Preference: 1, RandomFactor: 2}.Marshal()},
		},
	}

	raw := wire.MarshalBeacon(bcn)

	info, err := wire.ParseRadiotap(raw)
	if err != nil {
		t.Fatalf("parse radiotap: %v", err)
	}
	rest := raw[info.HeaderLen:]

	b := wire.NewBorrowing(rest)
	gotHdr := wire.UnmarshalHeader(b)
	if gotHdr != hdr {
		t.Fatalf("header round-trip mismatch: got %+v want %+v", gotHdr, hdr)
	}
	body, attrs, err := wire.ParseBeaconBody(b)
	if err != nil {
		t.Fatalf("parse beacon body: %v", err)
	}
	if body != bcn.Body {
		t.Fatalf("body round-trip mismatch: got %+v want %+v", body, bcn.Body)
	}
	if len(attrs) != 1 || !bytes.Equal(attrs[0].Value, bcn.Attributes[0].Value) {
		t.Fatalf("attribute round-trip mismatch: got %+v", attrs)
	}
}

func TestRadiotapFlagsRSSI(t *testing.T) {
	raw := wire.BuildRadiotap(true, 2)
	info, err := wire.ParseRadiotap(raw)
	if err != nil {
		t.Fatalf("parse radiotap: %v", err)
	}
	if info.Flags&wire.RadiotapFlagFCS == 0 {
		t.Fatalf("expected FCS flag set")
	}
	if !info.HasRSSI {
		t.Fatalf("expected antenna-signal field present")
	}
}

package wire

// NAN attribute ids used by the core (§4.1).
const (
	AttrMasterIndication     = 0x00
	AttrCluster              = 0x01
	AttrServiceDescriptor    = 0x03
	AttrServiceDescriptorExt = 0x0e
	AttrDeviceCapability     = 0x0f
	AttrAvailability         = 0x12
	AttrVendorSpecific       = 0xdd
)

// Attribute is a generic NAN TLV: id:u8, length:LE u16, value:length bytes.
// Unknown ids are preserved as opaque Value so callers can skip them.
type Attribute struct {
	ID    uint8
	Value []byte
}

// ReadAttribute reads one TLV attribute from the front of b. ok is false
// if the buffer was exhausted or malformed; callers should stop walking
// in that case.
func ReadAttribute(b *Buffer) (Attribute, bool) {
	if b.Len() == 0 {
		return Attribute{}, false
	}
	id := b.ReadU8()
	length := b.ReadU16LE()
	value := b.ReadRaw(int(length))
	if b.Err() != nil {
		return Attribute{}, false
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return Attribute{ID: id, Value: cp}, true
}

// WriteAttribute appends one TLV attribute.
func WriteAttribute(b *Buffer, id uint8, value []byte) {
	b.WriteU8(id)
	b.WriteU16LE(uint16(len(value)))
	b.WriteRaw(value)
}

// ParseAttributes walks every attribute remaining in b. A malformed
// trailing attribute stops the walk without failing the ones already
// parsed, matching §4.1's "unknown ids are skipped, not fatal" policy —
// only a length that overruns the buffer ends the walk early.
func ParseAttributes(b *Buffer) []Attribute {
	var out []Attribute
	for {
		attr, ok := ReadAttribute(b)
		if !ok {
			break
		}
		out = append(out, attr)
	}
	return out
}

// MasterIndication is attribute 0x00: master_preference, random_factor.
type MasterIndication struct {
	Preference   uint8
	RandomFactor uint8
}

func (m MasterIndication) Marshal() []byte {
	return []byte{m.Preference, m.RandomFactor}
}

func UnmarshalMasterIndication(v []byte) (MasterIndication, bool) {
	if len(v) < 2 {
		return MasterIndication{}, false
	}
	return MasterIndication{Preference: v[0], RandomFactor: v[1]}, true
}

// Cluster is attribute 0x01: anchor_master_rank, hop_count, AMBTT.
type Cluster struct {
	AnchorMasterRank MasterRank
	HopCount         uint8
	AMBTT            uint32
}

func (c Cluster) Marshal() []byte {
	b := NewOwned(13)
	b.WriteU64LE(uint64(c.AnchorMasterRank))
	b.WriteU8(c.HopCount)
	b.WriteU32LE(c.AMBTT)
	return b.All()
}

func UnmarshalCluster(v []byte) (Cluster, bool) {
	b := NewBorrowing(v)
	c := Cluster{
		AnchorMasterRank: MasterRank(b.ReadU64LE()),
		HopCount:         b.ReadU8(),
		AMBTT:            b.ReadU32LE(),
	}
	return c, b.Err() == nil
}

// Service Descriptor control-byte bits (attribute 0x03).
const (
	SDControlTypeMask           = 0x03
	SDControlMatchingFilter     = 1 << 2
	SDControlSRFPresent         = 1 << 3
	SDControlServiceInfoPresent = 1 << 4
	SDControlRangeLimited       = 1 << 5
	SDControlBindingBitmap      = 1 << 6
)

// Service Descriptor control-byte type values.
const (
	SDTypePublish   = 0
	SDTypeSubscribe = 1
	SDTypeFollowUp  = 2
)

// ServiceDescriptor is attribute 0x03.
type ServiceDescriptor struct {
	ServiceID            ServiceID
	InstanceID           InstanceID
	RequestorInstanceID  InstanceID
	Control              uint8
	MatchingFilter       []byte
	SRF                  []byte
	BindingBitmap        []byte
	ServiceInfo          []byte
}

// Type returns the two-bit control type (publish/subscribe/follow-up).
func (d ServiceDescriptor) Type() uint8 { return d.Control & SDControlTypeMask }

func (d ServiceDescriptor) Marshal() []byte {
	b := NewOwned(32)
	b.WriteRaw(d.ServiceID[:])
	b.WriteU8(uint8(d.InstanceID))
	b.WriteU8(uint8(d.RequestorInstanceID))
	b.WriteU8(d.Control)
	if d.Control&SDControlMatchingFilter != 0 {
		b.WriteU8(uint8(len(d.MatchingFilter)))
		b.WriteRaw(d.MatchingFilter)
	}
	if d.Control&SDControlSRFPresent != 0 {
		b.WriteU8(uint8(len(d.SRF)))
		b.WriteRaw(d.SRF)
	}
	if d.Control&SDControlBindingBitmap != 0 {
		b.WriteU8(uint8(len(d.BindingBitmap)))
		b.WriteRaw(d.BindingBitmap)
	}
	if d.Control&SDControlServiceInfoPresent != 0 {
		b.WriteU8(uint8(len(d.ServiceInfo)))
		b.WriteRaw(d.ServiceInfo)
	}
	return b.All()
}

func UnmarshalServiceDescriptor(v []byte) (ServiceDescriptor, bool) {
	b := NewBorrowing(v)
	var d ServiceDescriptor
	sid := b.ReadRaw(6)
	if b.Err() != nil {
		return d, false
	}
	copy(d.ServiceID[:], sid)
	d.InstanceID = InstanceID(b.ReadU8())
	d.RequestorInstanceID = InstanceID(b.ReadU8())
	d.Control = b.ReadU8()

	readOptional := func(flag uint8) []byte {
		if d.Control&flag == 0 {
			return nil
		}
		n := b.ReadU8()
		return b.ReadRaw(int(n))
	}
	d.MatchingFilter = readOptional(SDControlMatchingFilter)
	d.SRF = readOptional(SDControlSRFPresent)
	d.BindingBitmap = readOptional(SDControlBindingBitmap)
	d.ServiceInfo = readOptional(SDControlServiceInfoPresent)

	return d, b.Err() == nil
}

// ServiceDescriptorExt is attribute 0x0e.
type ServiceDescriptorExt struct {
	InstanceID             InstanceID
	Control                uint16
	RangeLimit             uint8
	ServiceUpdateIndicator uint8
	ServiceInfoOUI         [3]byte
	ServiceInfoProtocol    uint8
	ServiceInfo            []byte
}

const (
	SDEControlRangeLimitPresent   = 1 << 0
	SDEControlUpdateIndPresent    = 1 << 1
	SDEControlServiceInfoPresent  = 1 << 2
)

func (e ServiceDescriptorExt) Marshal() []byte {
	b := NewOwned(16)
	b.WriteU8(uint8(e.InstanceID))
	b.WriteU16LE(e.Control)
	if e.Control&SDEControlRangeLimitPresent != 0 {
		b.WriteU8(e.RangeLimit)
	}
	if e.Control&SDEControlUpdateIndPresent != 0 {
		b.WriteU8(e.ServiceUpdateIndicator)
	}
	if e.Control&SDEControlServiceInfoPresent != 0 {
		total := 3 + 1 + len(e.ServiceInfo)
		b.WriteU16LE(uint16(total))
		b.WriteRaw(e.ServiceInfoOUI[:])
		b.WriteU8(e.ServiceInfoProtocol)
		b.WriteRaw(e.ServiceInfo)
	}
	return b.All()
}

func UnmarshalServiceDescriptorExt(v []byte) (ServiceDescriptorExt, bool) {
	b := NewBorrowing(v)
	var e ServiceDescriptorExt
	e.InstanceID = InstanceID(b.ReadU8())
	e.Control = b.ReadU16LE()
	if e.Control&SDEControlRangeLimitPresent != 0 {
		e.RangeLimit = b.ReadU8()
	}
	if e.Control&SDEControlUpdateIndPresent != 0 {
		e.ServiceUpdateIndicator = b.ReadU8()
	}
	if e.Control&SDEControlServiceInfoPresent != 0 {
		total := int(b.ReadU16LE())
		if total < 4 {
			b.Advance(total)
		} else {
			oui := b.ReadRaw(3)
			if b.Err() == nil {
				copy(e.ServiceInfoOUI[:], oui)
			}
			e.ServiceInfoProtocol = b.ReadU8()
			e.ServiceInfo = b.ReadRaw(total - 4)
		}
	}
	return e, b.Err() == nil
}

// DeviceCapability is attribute 0x0f, emitted with minimal sane defaults
// (fixed layout per §4.1; this core does not negotiate capability bits).
type DeviceCapability struct {
	MapID            uint8
	SupportedBands   uint8
	OperationMode    uint8
	NumAntennas      uint8
	MaxChannelSwitch uint16
	Capabilities     uint8
}

func (d DeviceCapability) Marshal() []byte {
	b := NewOwned(8)
	b.WriteU8(d.MapID)
	b.WriteU8(d.SupportedBands)
	b.WriteU8(d.OperationMode)
	b.WriteU8(d.NumAntennas)
	b.WriteU16LE(d.MaxChannelSwitch)
	b.WriteU8(d.Capabilities)
	return b.All()
}

// DefaultDeviceCapability returns the minimal-defaults capability
// attribute this daemon advertises.
func DefaultDeviceCapability() DeviceCapability {
	return DeviceCapability{
		MapID:          0,
		SupportedBands: 0x04, // 2.4 GHz only
		OperationMode:  0,
		NumAntennas:    1,
	}
}

func UnmarshalDeviceCapability(v []byte) (DeviceCapability, bool) {
	b := NewBorrowing(v)
	d := DeviceCapability{
		MapID:          b.ReadU8(),
		SupportedBands: b.ReadU8(),
		OperationMode:  b.ReadU8(),
		NumAntennas:    b.ReadU8(),
	}
	d.MaxChannelSwitch = b.ReadU16LE()
	d.Capabilities = b.ReadU8()
	return d, b.Err() == nil
}

// Availability is attribute 0x12, emitted with exactly one committed
// entry and no time-bitmap, per §4.1.
type Availability struct {
	SequenceID uint8
	MapID      uint8
}

func (a Availability) Marshal() []byte {
	b := NewOwned(4)
	b.WriteU8(a.SequenceID)
	b.WriteU8(a.MapID)
	b.WriteU8(0) // entry control: committed, no time bitmap
	b.WriteU8(0) // entry length low byte placeholder (fixed single entry)
	return b.All()
}

// VendorSpecific is attribute 0xdd, used in the desync experiment to
// mark relayed frames (§9).
type VendorSpecific struct {
	OUI     [3]byte
	Subtype uint8
	Payload []byte
}

func (v VendorSpecific) Marshal() []byte {
	b := NewOwned(4 + len(v.Payload))
	b.WriteRaw(v.OUI[:])
	b.WriteU8(v.Subtype)
	b.WriteRaw(v.Payload)
	return b.All()
}

func UnmarshalVendorSpecific(v []byte) (VendorSpecific, bool) {
	b := NewBorrowing(v)
	oui := b.ReadRaw(3)
	if b.Err() != nil {
		return VendorSpecific{}, false
	}
	var out VendorSpecific
	copy(out.OUI[:], oui)
	out.Subtype = b.ReadU8()
	out.Payload = b.ReadRaw(b.Len())
	return out, b.Err() == nil
}

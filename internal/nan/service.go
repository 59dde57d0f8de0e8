package nan

import (
	"crypto/sha256"
	"errors"
	"strings"

	"github.com/nan80211/nand/internal/wire"
)

// ErrServiceExists is returned by Publish/Subscribe when a service of the
// same kind (published or subscribed) is already registered under the
// name, compared case-insensitively (§7 "semantic conflict").
var ErrServiceExists = errors.New("nan: service name already registered")

// ErrUnknownService is returned when an id passed to Update/Cancel does
// not name a registered service.
var ErrUnknownService = errors.New("nan: unknown service instance")

// ComputeServiceID is the first 6 bytes of SHA-256(lowercase(name)),
// satisfying §8 invariant 1's round-trip property.
func ComputeServiceID(name string) wire.ServiceID {
	sum := sha256.Sum256([]byte(strings.ToLower(name)))
	var id wire.ServiceID
	copy(id[:], sum[:6])
	return id
}

// PublishType controls when a Published service is announced.
type PublishType uint8

const (
	PublishUnsolicited PublishType = iota
	PublishSolicited
	PublishBoth
)

// SubscribeType controls how a Subscribed service listens.
type SubscribeType uint8

const (
	SubscribePassive SubscribeType = iota
	SubscribeActive
)

// Service is a locally registered Published or Subscribed service entry
// (§3).
type Service struct {
	Name      string
	ServiceID wire.ServiceID
	Instance  wire.InstanceID

	Published bool // false means Subscribed

	PublishType   PublishType
	DoPublish     bool // latched by a matching subscribe, cleared on send
	SubscribeType SubscribeType
	IsSubscribed  bool // true once a matching publish has been observed

	Info []byte
	TTL  int32 // announcement budget; -1 = unbounded
	USN  uint8 // service_update_indicator
}

// Registry holds every locally registered service, indexed by instance
// id with a secondary index by service id, replacing the source's
// linked lists (§9).
type Registry struct {
	byInstance map[wire.InstanceID]*Service
	byService  map[wire.ServiceID][]*Service
	nextID     wire.InstanceID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byInstance: make(map[wire.InstanceID]*Service),
		byService:  make(map[wire.ServiceID][]*Service),
	}
}

// allocID returns the next monotonic instance id, skipping 0 and any id
// already in use — no two services across either kind share an instance
// id (§3 invariant 5).
func (r *Registry) allocID() wire.InstanceID {
	for {
		r.nextID++
		if r.nextID == 0 {
			r.nextID = 1
		}
		if _, used := r.byInstance[r.nextID]; !used {
			return r.nextID
		}
	}
}

// Get returns the service registered under id, or nil if none is.
func (r *Registry) Get(id wire.InstanceID) *Service {
	return r.byInstance[id]
}

func (r *Registry) findByName(name string, published bool) *Service {
	sid := ComputeServiceID(name)
	for _, s := range r.byService[sid] {
		if s.Published == published && strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

// Publish registers a Published service, returning its non-zero instance
// id.
func (r *Registry) Publish(name string, ptype PublishType, ttl int32, info []byte) (wire.InstanceID, error) {
	if r.findByName(name, true) != nil {
		return 0, ErrServiceExists
	}
	s := &Service{
		Name:        name,
		ServiceID:   ComputeServiceID(name),
		Instance:    r.allocID(),
		Published:   true,
		PublishType: ptype,
		Info:        info,
		TTL:         ttl,
	}
	r.byInstance[s.Instance] = s
	r.byService[s.ServiceID] = append(r.byService[s.ServiceID], s)
	return s.Instance, nil
}

// Subscribe registers a Subscribed service, returning its non-zero
// instance id.
func (r *Registry) Subscribe(name string, stype SubscribeType, ttl int32, info []byte) (wire.InstanceID, error) {
	if r.findByName(name, false) != nil {
		return 0, ErrServiceExists
	}
	s := &Service{
		Name:          name,
		ServiceID:     ComputeServiceID(name),
		Instance:      r.allocID(),
		Published:     false,
		SubscribeType: stype,
		Info:          info,
		TTL:           ttl,
	}
	r.byInstance[s.Instance] = s
	r.byService[s.ServiceID] = append(r.byService[s.ServiceID], s)
	return s.Instance, nil
}

// UpdatePublish replaces a Published service's service-specific info.
func (r *Registry) UpdatePublish(id wire.InstanceID, info []byte) error {
	s, ok := r.byInstance[id]
	if !ok || !s.Published {
		return ErrUnknownService
	}
	s.Info = info
	s.USN++
	return nil
}

func (r *Registry) remove(id wire.InstanceID) {
	s, ok := r.byInstance[id]
	if !ok {
		return
	}
	delete(r.byInstance, id)
	list := r.byService[s.ServiceID]
	for i, v := range list {
		if v == s {
			r.byService[s.ServiceID] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// CancelPublish removes a Published service.
func (r *Registry) CancelPublish(id wire.InstanceID) error {
	s, ok := r.byInstance[id]
	if !ok || !s.Published {
		return ErrUnknownService
	}
	r.remove(id)
	return nil
}

// CancelSubscribe removes a Subscribed service.
func (r *Registry) CancelSubscribe(id wire.InstanceID) error {
	s, ok := r.byInstance[id]
	if !ok || s.Published {
		return ErrUnknownService
	}
	r.remove(id)
	return nil
}

// Each calls fn for every registered service. Order is unspecified.
func (r *Registry) Each(fn func(*Service)) {
	for _, s := range r.byInstance {
		fn(s)
	}
}

// AnnounceCandidate is one service to include in the next
// service-discovery frame, along with the descriptor control type to
// emit it as.
type AnnounceCandidate struct {
	Service *Service
	Type    uint8 // wire.SDTypePublish or wire.SDTypeSubscribe
}

// AnnounceCandidates returns the services to include in the next
// service-discovery frame, per §4.5: Published Unsolicited-or-Both with
// ttl != 0; Published Solicited-or-Both with do_publish latched;
// Subscribed Active with ttl != 0 and not yet subscribed.
func (r *Registry) AnnounceCandidates() []AnnounceCandidate {
	var out []AnnounceCandidate
	for _, s := range r.byInstance {
		switch {
		case s.Published && (s.PublishType == PublishUnsolicited || s.PublishType == PublishBoth) && s.TTL != 0:
			out = append(out, AnnounceCandidate{Service: s, Type: wire.SDTypePublish})
		case s.Published && (s.PublishType == PublishSolicited || s.PublishType == PublishBoth) && s.DoPublish:
			out = append(out, AnnounceCandidate{Service: s, Type: wire.SDTypePublish})
		case !s.Published && s.SubscribeType == SubscribeActive && s.TTL != 0 && !s.IsSubscribed:
			out = append(out, AnnounceCandidate{Service: s, Type: wire.SDTypeSubscribe})
		}
	}
	return out
}

// UpdateAfterAnnounce decrements TTL (if bounded) and clears the
// do_publish latch for every service just announced. A service whose
// TTL reaches zero is removed and its termination event published.
func (r *Registry) UpdateAfterAnnounce(bus *EventBus, list []AnnounceCandidate) {
	for _, c := range list {
		if c.Service.TTL > 0 {
			c.Service.TTL--
			if c.Service.TTL == 0 {
				id := c.Service.Instance
				name := c.Service.Name
				published := c.Service.Published
				r.remove(id)
				if published {
					bus.Publish(name, PublishTerminatedEvent{InstanceID: id})
				} else {
					bus.Publish(name, SubscribeTerminatedEvent{InstanceID: id})
				}
				continue
			}
		}
		c.Service.DoPublish = false
	}
}

// OnReceivedDescriptor dispatches a parsed Service Descriptor against
// this device's registry, publishing events to bus. source is the
// sending peer's address. frameDest is the frame's addr1; per §4.5 a
// Follow-Up descriptor is only processed when frameDest == selfAddr.
func (r *Registry) OnReceivedDescriptor(bus *EventBus, source, frameDest, selfAddr wire.EtherAddr, d wire.ServiceDescriptor) {
	switch d.Type() {
	case wire.SDTypePublish:
		for _, sub := range r.byService[d.ServiceID] {
			if sub.Published {
				continue
			}
			bus.Publish(sub.Name, DiscoveryResultEvent{
				SubscribeID: sub.Instance,
				PublishID:   d.InstanceID,
				Address:     source,
				ServiceInfo: d.ServiceInfo,
			})
			sub.IsSubscribed = true
		}
	case wire.SDTypeSubscribe:
		for _, pub := range r.byService[d.ServiceID] {
			if !pub.Published {
				continue
			}
			pub.DoPublish = true
			bus.Publish(pub.Name, RepliedEvent{
				PublishID:   pub.Instance,
				SubscribeID: d.InstanceID,
				Address:     source,
			})
		}
	case wire.SDTypeFollowUp:
		if frameDest != selfAddr {
			return
		}
		for _, local := range r.byService[d.ServiceID] {
			bus.Publish(local.Name, ReceiveEvent{
				InstanceID:     local.Instance,
				PeerInstanceID: d.InstanceID,
				Address:        source,
				Payload:        d.ServiceInfo,
			})
		}
	}
}

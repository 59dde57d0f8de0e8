package nan

import (
	"strings"

	"github.com/nan80211/nand/internal/wire"
)

// Event is the tagged-union member type dispatched by the event bus,
// replacing the source's listener-list + name-prefix string match (§9
// "Event dispatch").
type Event interface {
	eventKind() string
}

// DiscoveryResultEvent fires when a local Subscribe matches a peer's
// Publish.
type DiscoveryResultEvent struct {
	SubscribeID wire.InstanceID
	PublishID   wire.InstanceID
	Address     wire.EtherAddr
	ServiceInfo []byte
}

func (DiscoveryResultEvent) eventKind() string { return "discovery_result" }

// RepliedEvent fires when a local Publish observes a matching Subscribe.
type RepliedEvent struct {
	PublishID   wire.InstanceID
	SubscribeID wire.InstanceID
	Address     wire.EtherAddr
}

func (RepliedEvent) eventKind() string { return "replied" }

// ReceiveEvent fires when a Follow-Up message addressed to this device
// arrives for a known local service.
type ReceiveEvent struct {
	InstanceID     wire.InstanceID
	PeerInstanceID wire.InstanceID
	Address        wire.EtherAddr
	Payload        []byte
}

func (ReceiveEvent) eventKind() string { return "receive" }

// PublishTerminatedEvent fires when a Published service's TTL expires.
type PublishTerminatedEvent struct {
	InstanceID wire.InstanceID
}

func (PublishTerminatedEvent) eventKind() string { return "publish_terminated" }

// SubscribeTerminatedEvent fires when a Subscribed service's TTL
// expires.
type SubscribeTerminatedEvent struct {
	InstanceID wire.InstanceID
}

func (SubscribeTerminatedEvent) eventKind() string { return "subscribe_terminated" }

// Subscription is the opaque handle returned by EventBus.Subscribe.
type Subscription uint64

type subscriber struct {
	id     Subscription
	prefix string
	fn     func(Event)
}

// EventBus dispatches Events synchronously, from the reactor thread, to
// subscribers optionally filtered by a service-name prefix.
type EventBus struct {
	subs []subscriber
	next Subscription
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus { return &EventBus{} }

// Subscribe registers fn to receive every published Event whose
// associated service name (when the event carries one by construction
// of the caller) starts with prefix. An empty prefix matches everything.
func (b *EventBus) Subscribe(prefix string, fn func(Event)) Subscription {
	b.next++
	id := b.next
	b.subs = append(b.subs, subscriber{id: id, prefix: prefix, fn: fn})
	return id
}

// Unsubscribe removes a previously registered subscription.
func (b *EventBus) Unsubscribe(id Subscription) {
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish dispatches ev to every subscriber whose prefix matches name.
func (b *EventBus) Publish(name string, ev Event) {
	for _, s := range b.subs {
		if s.prefix == "" || strings.HasPrefix(name, s.prefix) {
			s.fn(ev)
		}
	}
}

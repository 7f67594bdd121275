// Package broadcast fans broadcast-channel messages out to the global
// scopes subscribed to a named channel within one security origin.
// Origin isolation is absolute: the routing table is keyed by origin, so
// no delivery path exists between different origins.
package broadcast

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/emberweb/constellate/internal/ident"
)

// Origin is the security principal a channel is scoped to
// (scheme+host+port, or an opaque token).
type Origin string

// Message is one broadcast-channel payload. It carries its own origin
// and channel name; the router never rewrites either.
type Message struct {
	ID      string `json:"id"`
	Origin  Origin `json:"origin"`
	Channel string `json:"channel"`
	Data    []byte `json:"data"`
}

// NewMessage builds a message with a fresh id.
func NewMessage(origin Origin, channel string, data []byte) Message {
	return Message{
		ID:      uuid.NewString(),
		Origin:  origin,
		Channel: channel,
		Data:    data,
	}
}

// Sink receives deliveries on behalf of one registered router endpoint.
type Sink interface {
	Deliver(Message) error
}

// ErrPeerGone is returned by a sink whose receiving side has shut down.
var ErrPeerGone = errors.New("broadcast: peer gone")

// ErrPeerBusy is returned when a sink's delivery buffer is full. The
// message is dropped for that subscriber; the fan-out must not wait on
// a slow peer.
var ErrPeerBusy = errors.New("broadcast: peer busy, dropping message")

// ChanSink delivers into a channel owned by the subscribing scope's
// event loop. The send half is safely shareable without any wrapper
// lock; done unblocks deliveries once the peer stops receiving.
type ChanSink struct {
	ch   chan<- Message
	done <-chan struct{}
}

// NewChanSink wraps a delivery channel and its owner's done signal.
func NewChanSink(ch chan<- Message, done <-chan struct{}) *ChanSink {
	return &ChanSink{ch: ch, done: done}
}

// Deliver sends the message without waiting. It reports ErrPeerGone if
// the receiving scope has shut down, and ErrPeerBusy if the delivery
// buffer is full; either way the caller's fan-out keeps moving.
func (s *ChanSink) Deliver(msg Message) error {
	select {
	case <-s.done:
		return ErrPeerGone
	case s.ch <- msg:
		return nil
	default:
		return ErrPeerBusy
	}
}

type subscriptionKey struct {
	origin  Origin
	channel string
}

// Router owns the origin/channel subscription tables. Like the hang
// monitor, it belongs to the orchestrator goroutine; subordinate scopes
// talk to it only through the orchestrator's inbox.
type Router struct {
	logger *slog.Logger

	sinks         map[ident.RouterId]Sink
	subscriptions map[subscriptionKey][]ident.RouterId
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		logger:        logger,
		sinks:         make(map[ident.RouterId]Sink),
		subscriptions: make(map[subscriptionKey][]ident.RouterId),
	}
}

// RegisterRouter installs the sink for a router endpoint. Duplicate
// registration overwrites the previous sink and is tolerated.
func (r *Router) RegisterRouter(id ident.RouterId, sink Sink) {
	if _, ok := r.sinks[id]; ok {
		r.logger.Warn("router re-registered, replacing sink", "router", id.String())
	}
	r.sinks[id] = sink
}

// UnregisterRouter removes the endpoint and scrubs it out of every
// subscriber list it had joined, pruning any entry left empty.
func (r *Router) UnregisterRouter(id ident.RouterId) {
	if _, ok := r.sinks[id]; !ok {
		r.logger.Warn("unregister for unknown router", "router", id.String())
	}
	delete(r.sinks, id)

	for key, subscribers := range r.subscriptions {
		remaining := subscribers[:0]
		for _, sub := range subscribers {
			if sub != id {
				remaining = append(remaining, sub)
			}
		}
		if len(remaining) == 0 {
			delete(r.subscriptions, key)
			continue
		}
		r.subscriptions[key] = remaining
	}
}

// Subscribe adds the router to the subscriber list for the channel under
// the given origin, creating the entry if absent.
func (r *Router) Subscribe(id ident.RouterId, channel string, origin Origin) {
	key := subscriptionKey{origin: origin, channel: channel}
	r.subscriptions[key] = append(r.subscriptions[key], id)
}

// Unsubscribe removes one occurrence of the router from the subscriber
// list, pruning the entry if it empties. An unknown pair is a warning.
func (r *Router) Unsubscribe(id ident.RouterId, channel string, origin Origin) {
	key := subscriptionKey{origin: origin, channel: channel}
	subscribers, ok := r.subscriptions[key]
	if !ok {
		r.logger.Warn("unsubscribe for unknown channel",
			"router", id.String(), "channel", channel, "origin", string(origin))
		return
	}
	for i, sub := range subscribers {
		if sub == id {
			subscribers = append(subscribers[:i], subscribers[i+1:]...)
			if len(subscribers) == 0 {
				delete(r.subscriptions, key)
			} else {
				r.subscriptions[key] = subscribers
			}
			return
		}
	}
	r.logger.Warn("unsubscribe for router not on channel",
		"router", id.String(), "channel", channel, "origin", string(origin))
}

// Broadcast delivers the message to every subscriber of its
// (origin, channel) except the sender. A missing entry, a missing sink,
// or a failed delivery is a warning; the fan-out continues for all other
// subscribers. The sender is always excluded — local echo, if wanted, is
// the sender's own business.
func (r *Router) Broadcast(sender ident.RouterId, msg Message) {
	key := subscriptionKey{origin: msg.Origin, channel: msg.Channel}
	subscribers, ok := r.subscriptions[key]
	if !ok {
		r.logger.Warn("broadcast to channel with no subscribers",
			"channel", msg.Channel, "origin", string(msg.Origin))
		return
	}
	for _, sub := range subscribers {
		if sub == sender {
			continue
		}
		sink, ok := r.sinks[sub]
		if !ok {
			r.logger.Warn("subscriber has no registered sink", "router", sub.String())
			continue
		}
		if err := sink.Deliver(msg); err != nil {
			r.logger.Warn("broadcast delivery failed",
				"router", sub.String(), "channel", msg.Channel, "error", err)
		}
	}
}

// Subscribers returns a copy of the current subscriber list for a
// channel, mainly for the orchestrator's introspection surface.
func (r *Router) Subscribers(channel string, origin Origin) []ident.RouterId {
	subscribers := r.subscriptions[subscriptionKey{origin: origin, channel: channel}]
	if len(subscribers) == 0 {
		return nil
	}
	out := make([]ident.RouterId, len(subscribers))
	copy(out, subscribers)
	return out
}

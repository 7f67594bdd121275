// Package protocol defines the typed messages the orchestrator's
// dispatch loop consumes. This is an in-process bus: messages travel
// over channels, and the ones that carry sinks or reply channels are
// never serialized.
package protocol

import (
	"github.com/emberweb/constellate/internal/broadcast"
	"github.com/emberweb/constellate/internal/fault"
	"github.com/emberweb/constellate/internal/hangmon"
	"github.com/emberweb/constellate/internal/ident"
)

// MessageKind names what a message is, for dispatch and diagnostics.
type MessageKind string

const (
	MessageKindRegisterComponent   MessageKind = "register_component"
	MessageKindUnregisterComponent MessageKind = "unregister_component"
	MessageKindNotifyActivity      MessageKind = "notify_activity"
	MessageKindNotifyWait          MessageKind = "notify_wait"
	MessageKindCheckpoint          MessageKind = "checkpoint"
	MessageKindCollectAlerts       MessageKind = "collect_alerts"

	MessageKindRegisterRouter   MessageKind = "register_router"
	MessageKindUnregisterRouter MessageKind = "unregister_router"
	MessageKindSubscribe        MessageKind = "subscribe"
	MessageKindUnsubscribe      MessageKind = "unsubscribe"
	MessageKindBroadcast        MessageKind = "broadcast"

	MessageKindFaultEntry MessageKind = "fault_entry"

	MessageKindExit             MessageKind = "exit"
	MessageKindShutdownComplete MessageKind = "shutdown_complete"
)

// Message is anything the dispatch loop accepts on its inbox.
type Message interface {
	Kind() MessageKind
}

// RegisterComponent puts a component under hang supervision.
type RegisterComponent struct {
	Component ident.ComponentId
	Timers    hangmon.Timers
}

func (RegisterComponent) Kind() MessageKind { return MessageKindRegisterComponent }

// UnregisterComponent removes a component from supervision.
type UnregisterComponent struct {
	Component ident.ComponentId
}

func (UnregisterComponent) Kind() MessageKind { return MessageKindUnregisterComponent }

// NotifyActivity reports that the component started (or continued) work.
type NotifyActivity struct {
	Component ident.ComponentId
}

func (NotifyActivity) Kind() MessageKind { return MessageKindNotifyActivity }

// NotifyWait reports that the component went back to waiting for work.
type NotifyWait struct {
	Component ident.ComponentId
}

func (NotifyWait) Kind() MessageKind { return MessageKindNotifyWait }

// Checkpoint asks the supervisor to evaluate every running component
// now. The periodic driver sends these; embedders may too.
type Checkpoint struct{}

func (Checkpoint) Kind() MessageKind { return MessageKindCheckpoint }

// CollectAlerts drains the pending alert queue into Reply. Exactly one
// slice is always sent, nil when nothing is pending.
type CollectAlerts struct {
	Reply chan<- []hangmon.Alert
}

func (CollectAlerts) Kind() MessageKind { return MessageKindCollectAlerts }

// RegisterRouter installs a broadcast endpoint and its delivery sink.
type RegisterRouter struct {
	Router ident.RouterId
	Sink   broadcast.Sink
}

func (RegisterRouter) Kind() MessageKind { return MessageKindRegisterRouter }

// UnregisterRouter tears the endpoint down and scrubs its subscriptions.
type UnregisterRouter struct {
	Router ident.RouterId
}

func (UnregisterRouter) Kind() MessageKind { return MessageKindUnregisterRouter }

// Subscribe joins a router to a channel within an origin.
type Subscribe struct {
	Router  ident.RouterId
	Channel string
	Origin  broadcast.Origin
}

func (Subscribe) Kind() MessageKind { return MessageKindSubscribe }

// Unsubscribe removes a router from a channel within an origin.
type Unsubscribe struct {
	Router  ident.RouterId
	Channel string
	Origin  broadcast.Origin
}

func (Unsubscribe) Kind() MessageKind { return MessageKindUnsubscribe }

// Broadcast fans the message out to the channel's other subscribers.
type Broadcast struct {
	Sender  ident.RouterId
	Message broadcast.Message
}

func (Broadcast) Kind() MessageKind { return MessageKindBroadcast }

// FaultEntry carries a fault injected through the inbox rather than a
// bridge's dedicated channel.
type FaultEntry struct {
	Entry fault.Entry
}

func (FaultEntry) Kind() MessageKind { return MessageKindFaultEntry }

// Exit asks the orchestrator to begin supervised teardown. Reply is
// closed once the orchestrator reaches its stopped state.
type Exit struct {
	Reply chan<- struct{}
}

func (Exit) Kind() MessageKind { return MessageKindExit }

// ShutdownComplete tells an exiting orchestrator that the external
// collaborators have finished their own teardown.
type ShutdownComplete struct{}

func (ShutdownComplete) Kind() MessageKind { return MessageKindShutdownComplete }

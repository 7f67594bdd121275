// Package orch implements the orchestrator's dispatch loop: a single
// goroutine that owns the hang monitor, the broadcast router, and the
// fault staging area, and serves every subordinate execution context
// through one inbox.
package orch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/emberweb/constellate/internal/broadcast"
	"github.com/emberweb/constellate/internal/eventlog"
	"github.com/emberweb/constellate/internal/fault"
	"github.com/emberweb/constellate/internal/hangmon"
	"github.com/emberweb/constellate/internal/ident"
	"github.com/emberweb/constellate/internal/protocol"
)

// Phase is the orchestrator's own lifecycle state.
type Phase string

const (
	PhaseRunning Phase = "running"
	PhaseExiting Phase = "exiting"
	PhaseStopped Phase = "stopped"
)

// CrashReporter receives the details of every panic that surfaces
// through fault aggregation. The report generator itself lives outside
// this core.
type CrashReporter interface {
	Report(contextName, message, backtrace string)
}

// ReporterFunc adapts a function to the CrashReporter interface.
type ReporterFunc func(contextName, message, backtrace string)

func (f ReporterFunc) Report(contextName, message, backtrace string) {
	f(contextName, message, backtrace)
}

// Options configures an orchestrator.
type Options struct {
	Logger *slog.Logger
	Clock  clock.Clock

	// CheckpointInterval is the cadence of the periodic checkpoint
	// driver. Zero disables it; checkpoints then happen only when a
	// Checkpoint message arrives.
	CheckpointInterval time.Duration

	// EventLog, when set, receives every fault, alert, and lifecycle
	// transition.
	EventLog *eventlog.Log

	// Reporter, when set, receives surfaced panics.
	Reporter CrashReporter

	// InboxSize bounds the inbox channel. Zero means a small default.
	InboxSize int
}

const defaultInboxSize = 128

// Orchestrator owns the supervisory subsystems. All mutation of their
// tables happens on the Run goroutine; everything else talks to it via
// Send and the fault inbox.
type Orchestrator struct {
	logger *slog.Logger
	clk    clock.Clock

	monitor *hangmon.Monitor
	router  *broadcast.Router
	issuer  *ident.NamespaceIssuer

	inbox  chan protocol.Message
	faults chan fault.Entry
	done   chan struct{}

	log      *eventlog.Log
	reporter CrashReporter

	checkpointInterval time.Duration

	phase       atomic.Value // Phase
	staged      []fault.Entry
	exitReplies []chan<- struct{}
}

// New builds an orchestrator. Run must be called before anything is
// dispatched.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	size := opts.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}

	o := &Orchestrator{
		logger:             logger,
		clk:                clk,
		monitor:            hangmon.NewMonitor(clk, logger),
		router:             broadcast.NewRouter(logger),
		issuer:             ident.NewNamespaceIssuer(),
		inbox:              make(chan protocol.Message, size),
		faults:             make(chan fault.Entry, size),
		done:               make(chan struct{}),
		log:                opts.EventLog,
		reporter:           opts.Reporter,
		checkpointInterval: opts.CheckpointInterval,
	}
	o.phase.Store(PhaseRunning)
	return o
}

// Phase reports the current lifecycle phase.
func (o *Orchestrator) Phase() Phase {
	return o.phase.Load().(Phase)
}

// Issuer returns the namespace issuer for newly started host processes.
func (o *Orchestrator) Issuer() *ident.NamespaceIssuer {
	return o.issuer
}

// Done is closed once the orchestrator stops receiving. Bridges and
// sinks use it to avoid wedging on a departed peer.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Send enqueues a message for the dispatch loop. It reports false, and
// drops the message, once the orchestrator has stopped.
func (o *Orchestrator) Send(msg protocol.Message) bool {
	select {
	case <-o.done:
		o.logger.Warn("message dropped, orchestrator stopped", "kind", string(msg.Kind()))
		return false
	case o.inbox <- msg:
		return true
	}
}

// ScriptBridge builds a fault bridge for a script execution context.
func (o *Orchestrator) ScriptBridge(contextName string, pipeline ident.PipelineId) *fault.Bridge {
	p := pipeline
	return fault.NewBridge(fault.SinkScript, contextName, &p, o.faults, o.done)
}

// CompositorBridge builds a fault bridge for a presentation context.
func (o *Orchestrator) CompositorBridge(contextName string) *fault.Bridge {
	return fault.NewBridge(fault.SinkCompositor, contextName, nil, o.faults, o.done)
}

// CollectAlerts drains the supervisor's pending alerts through the
// dispatch loop. Returns nil if the orchestrator has stopped.
func (o *Orchestrator) CollectAlerts() []hangmon.Alert {
	reply := make(chan []hangmon.Alert, 1)
	if !o.Send(protocol.CollectAlerts{Reply: reply}) {
		return nil
	}
	select {
	case alerts := <-reply:
		return alerts
	case <-o.done:
		return nil
	}
}

// Exit asks the orchestrator to begin teardown. The returned channel is
// closed once it reaches the stopped phase.
func (o *Orchestrator) Exit() <-chan struct{} {
	reply := make(chan struct{})
	if !o.Send(protocol.Exit{Reply: reply}) {
		close(reply)
	}
	return reply
}

// Run drives the dispatch loop until teardown completes or ctx is
// cancelled. It is the only goroutine that touches the monitor, the
// router, or the staging area.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.writeLifecycle(string(PhaseRunning))

	var tick <-chan time.Time
	if o.checkpointInterval > 0 {
		ticker := o.clk.Ticker(o.checkpointInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	ctxDone := ctx.Done()
	for {
		switch o.Phase() {
		case PhaseRunning:
			select {
			case <-ctxDone:
				// Cancellation counts as an exit request with no external
				// collaborators left to wait for.
				o.beginExit()
				o.finalize()
				return ctx.Err()
			case msg := <-o.inbox:
				o.safeDispatch(msg)
			case entry := <-o.faults:
				o.handleFault(entry)
			case <-tick:
				o.monitor.Checkpoint()
			}
		case PhaseExiting:
			select {
			case <-ctxDone:
				o.finalize()
				return ctx.Err()
			case msg := <-o.inbox:
				o.safeDispatch(msg)
			case entry := <-o.faults:
				o.handleFault(entry)
			}
		case PhaseStopped:
			o.finalize()
			return nil
		}
	}
}

// safeDispatch keeps a malformed or unexpected message from taking the
// loop down; the failure is degraded to an error log.
func (o *Orchestrator) safeDispatch(msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("dispatch panicked", "kind", string(msg.Kind()), "panic", r)
		}
	}()
	if o.Phase() != PhaseRunning {
		o.dispatchExiting(msg)
		return
	}
	o.dispatch(msg)
}

func (o *Orchestrator) dispatch(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.RegisterComponent:
		o.monitor.Register(m.Component, m.Timers)
	case protocol.UnregisterComponent:
		o.monitor.Unregister(m.Component)
	case protocol.NotifyActivity:
		o.monitor.NotifyActivity(m.Component)
	case protocol.NotifyWait:
		o.monitor.NotifyWait(m.Component)
	case protocol.Checkpoint:
		o.monitor.Checkpoint()
	case protocol.CollectAlerts:
		o.replyAlerts(m.Reply, o.monitor.CollectAlerts())

	case protocol.RegisterRouter:
		o.router.RegisterRouter(m.Router, m.Sink)
	case protocol.UnregisterRouter:
		o.router.UnregisterRouter(m.Router)
	case protocol.Subscribe:
		o.router.Subscribe(m.Router, m.Channel, m.Origin)
	case protocol.Unsubscribe:
		o.router.Unsubscribe(m.Router, m.Channel, m.Origin)
	case protocol.Broadcast:
		o.router.Broadcast(m.Sender, m.Message)

	case protocol.FaultEntry:
		o.handleFault(m.Entry)

	case protocol.Exit:
		o.beginExit()
		if m.Reply != nil {
			o.exitReplies = append(o.exitReplies, m.Reply)
		}
	case protocol.ShutdownComplete:
		o.logger.Warn("shutdown_complete while still running")

	default:
		o.logger.Warn("unexpected message kind", "kind", string(msg.Kind()))
	}
}

// dispatchExiting drains defensively: reply-carrying messages are
// answered so their senders never block on a dying orchestrator, and
// everything else is acknowledged with a warning.
func (o *Orchestrator) dispatchExiting(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.CollectAlerts:
		o.replyAlerts(m.Reply, nil)
	case protocol.Exit:
		if m.Reply != nil {
			o.exitReplies = append(o.exitReplies, m.Reply)
		}
	case protocol.ShutdownComplete:
		o.phase.Store(PhaseStopped)
	case protocol.FaultEntry:
		o.handleFault(m.Entry)
	default:
		o.logger.Warn("message discarded during exit", "kind", string(msg.Kind()))
	}
}

func (o *Orchestrator) replyAlerts(reply chan<- []hangmon.Alert, alerts []hangmon.Alert) {
	if o.log != nil {
		for _, alert := range alerts {
			if err := o.log.WriteAlert(alert); err != nil {
				o.logger.Warn("failed to log hang alert", "error", err)
			}
		}
	}
	if reply == nil {
		o.logger.Warn("collect_alerts with no reply channel")
		return
	}
	select {
	case reply <- alerts:
	default:
		o.logger.Warn("collect_alerts reply channel full, alerts dropped")
	}
}

// handleFault stages the entry and, for panics, hands it to the crash
// reporter and tears down supervision of the affected pipeline. A
// subordinate panic must never crash the orchestrator itself.
func (o *Orchestrator) handleFault(entry fault.Entry) {
	o.staged = append(o.staged, entry)
	if o.log != nil {
		if err := o.log.WriteFault(entry); err != nil {
			o.logger.Warn("failed to log fault entry", "error", err)
		}
	}
	if entry.Kind != fault.KindPanic {
		return
	}

	o.logger.Error("panic surfaced from subordinate context",
		"context", entry.ContextName, "message", entry.Message)
	if o.reporter != nil {
		o.reporter.Report(entry.ContextName, entry.Message, entry.Backtrace)
	}
	if entry.Pipeline != nil {
		o.teardownPipeline(*entry.Pipeline)
	}
}

// teardownPipeline stops supervising a pipeline whose script context
// panicked. The pipeline's own threads are torn down by collaborators
// outside this core.
func (o *Orchestrator) teardownPipeline(pipeline ident.PipelineId) {
	for _, kind := range []ident.ComponentKind{ident.ComponentKindScript, ident.ComponentKindLayout} {
		id := ident.ComponentId{Pipeline: pipeline, Kind: kind}
		if o.monitor.Registered(id) {
			o.monitor.Unregister(id)
		}
	}
	o.logger.Info("pipeline supervision torn down", "pipeline", pipeline.String())
}

func (o *Orchestrator) beginExit() {
	if o.Phase() != PhaseRunning {
		return
	}
	o.phase.Store(PhaseExiting)
	o.writeLifecycle(string(PhaseExiting))
}

// finalize answers anything still queued, closes done, and settles the
// stopped phase. Idempotent against the drain loop racing new sends.
func (o *Orchestrator) finalize() {
	for {
		select {
		case msg := <-o.inbox:
			o.safeDispatch(msg)
			continue
		case entry := <-o.faults:
			o.handleFault(entry)
			continue
		default:
		}
		break
	}

	o.phase.Store(PhaseStopped)
	close(o.done)
	for _, reply := range o.exitReplies {
		close(reply)
	}
	o.exitReplies = nil
	o.writeLifecycle(string(PhaseStopped))
}

// StagedFaults returns a snapshot of the crash-report staging area. Only
// meaningful once the orchestrator has stopped; while running, the
// staging area belongs to the dispatch goroutine.
func (o *Orchestrator) StagedFaults() []fault.Entry {
	out := make([]fault.Entry, len(o.staged))
	copy(out, o.staged)
	return out
}

func (o *Orchestrator) writeLifecycle(phase string) {
	if o.log == nil {
		return
	}
	if err := o.log.WriteLifecycle(phase); err != nil {
		o.logger.Warn("failed to log lifecycle transition", "phase", phase, "error", err)
	}
}

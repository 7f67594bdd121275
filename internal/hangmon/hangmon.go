// Package hangmon tracks the responsiveness of the independently
// scheduled components the orchestrator supervises. Each registered
// component reports when it starts working and when it goes back to
// waiting; an explicit checkpoint pass classifies anything still running
// as transiently or permanently hung based on how long it has been
// silent.
package hangmon

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/emberweb/constellate/internal/ident"
)

// AlertKind classifies how far past its budget a running component is.
type AlertKind string

const (
	// AlertTransient means the component blew through its task timeout
	// but may still recover.
	AlertTransient AlertKind = "transient"
	// AlertPermanent means the component has been silent past its max
	// timeout and is considered wedged.
	AlertPermanent AlertKind = "permanent"
)

// Alert is one hang observation produced during a checkpoint.
type Alert struct {
	Component ident.ComponentId `json:"component"`
	Kind      AlertKind         `json:"kind"`
	Elapsed   time.Duration     `json:"elapsed"`
}

// Timers holds the per-component hang budgets, fixed at registration.
type Timers struct {
	TaskTimeout time.Duration `json:"task_timeout"`
	MaxTimeout  time.Duration `json:"max_timeout"`
}

type componentState struct {
	timers       Timers
	running      bool
	lastActivity time.Time
}

// Monitor owns the responsiveness tables. It is owned by the orchestrator
// goroutine and is not safe for concurrent use; all cross-thread
// interaction goes through the orchestrator's inbox.
type Monitor struct {
	clock  clock.Clock
	logger *slog.Logger

	components map[ident.ComponentId]*componentState
	pending    []Alert
}

// NewMonitor creates an empty monitor using the given clock source.
func NewMonitor(clk clock.Clock, logger *slog.Logger) *Monitor {
	return &Monitor{
		clock:      clk,
		logger:     logger,
		components: make(map[ident.ComponentId]*componentState),
	}
}

// Register adds a component in the waiting state. Registering an id that
// is already present reinitializes it; the previous state is discarded.
func (m *Monitor) Register(id ident.ComponentId, timers Timers) {
	if _, ok := m.components[id]; ok {
		m.logger.Warn("component re-registered, resetting state", "component", id.String())
	}
	m.components[id] = &componentState{timers: timers}
}

// Unregister removes a component entirely. Unknown ids are tolerated.
func (m *Monitor) Unregister(id ident.ComponentId) {
	if _, ok := m.components[id]; !ok {
		m.logger.Warn("unregister for unknown component", "component", id.String())
		return
	}
	delete(m.components, id)
}

// NotifyActivity marks the component as running and stamps the current
// time. A notification for an unregistered id is a warning, not an error.
func (m *Monitor) NotifyActivity(id ident.ComponentId) {
	state, ok := m.components[id]
	if !ok {
		m.logger.Warn("activity from unregistered component", "component", id.String())
		return
	}
	state.running = true
	state.lastActivity = m.clock.Now()
}

// NotifyWait moves the component back to waiting, discarding any timing
// state. A waiting component never hangs, no matter how long it waits.
func (m *Monitor) NotifyWait(id ident.ComponentId) {
	state, ok := m.components[id]
	if !ok {
		m.logger.Warn("wait from unregistered component", "component", id.String())
		return
	}
	state.running = false
	state.lastActivity = time.Time{}
}

// Checkpoint evaluates every running component against its budgets and
// appends an alert for each one past its task timeout. This is the only
// place alerts are produced; classification is a pure function of the
// elapsed time at the moment of the call, so a component stuck past its
// max timeout yields a fresh permanent alert on every checkpoint until
// it reports activity again.
func (m *Monitor) Checkpoint() {
	now := m.clock.Now()
	for id, state := range m.components {
		if !state.running {
			continue
		}
		elapsed := now.Sub(state.lastActivity)
		switch {
		case elapsed < state.timers.TaskTimeout:
		case elapsed < state.timers.MaxTimeout:
			m.pending = append(m.pending, Alert{Component: id, Kind: AlertTransient, Elapsed: elapsed})
		default:
			m.pending = append(m.pending, Alert{Component: id, Kind: AlertPermanent, Elapsed: elapsed})
		}
	}
}

// CollectAlerts drains and returns everything queued since the last
// collection, in checkpoint order. It never evaluates anything itself;
// two consecutive calls with no checkpoint in between return alerts then
// nil.
func (m *Monitor) CollectAlerts() []Alert {
	alerts := m.pending
	m.pending = nil
	return alerts
}

// Registered reports whether the component is currently tracked.
func (m *Monitor) Registered(id ident.ComponentId) bool {
	_, ok := m.components[id]
	return ok
}

// Package fault normalizes warnings, errors, and panics from subordinate
// execution contexts into entries the orchestrator can aggregate and,
// for panics, hand to the crash reporter.
package fault

import (
	"github.com/emberweb/constellate/internal/ident"
)

// Kind tags what an entry represents.
type Kind string

const (
	KindWarning Kind = "warning"
	KindError   Kind = "error"
	KindPanic   Kind = "panic"
)

// Entry is one normalized fault, suitable for cross-boundary transport.
// ContextName is the originating execution context's name, empty if the
// context was unnamed. Backtrace is set only for panics. Pipeline is the
// optional extra identifier attached by script-context bridges.
type Entry struct {
	Kind        Kind              `json:"kind"`
	ContextName string            `json:"context,omitempty"`
	Message     string            `json:"message"`
	Backtrace   string            `json:"backtrace,omitempty"`
	Pipeline    *ident.PipelineId `json:"pipeline,omitempty"`
}

// Warning builds a warning entry.
func Warning(contextName, message string) Entry {
	return Entry{Kind: KindWarning, ContextName: contextName, Message: message}
}

// Error builds an error entry.
func Error(contextName, message string) Entry {
	return Entry{Kind: KindError, ContextName: contextName, Message: message}
}

// Panic builds a panic entry with its captured backtrace.
func Panic(contextName, message, backtrace string) Entry {
	return Entry{Kind: KindPanic, ContextName: contextName, Message: message, Backtrace: backtrace}
}

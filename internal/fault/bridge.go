package fault

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/emberweb/constellate/internal/ident"
)

// SinkKind names which flavor of execution context a bridge serves. The
// set is closed: script-like contexts attach their pipeline id, and
// compositor-like contexts do not.
type SinkKind string

const (
	SinkScript     SinkKind = "script"
	SinkCompositor SinkKind = "compositor"
)

// Bridge is a slog.Handler installed inside one subordinate execution
// context. It filters out anything below Warn, converts the rest into
// fault entries, and pushes them eagerly to the orchestrator's inbox.
// Logging through the bridge never blocks and never fails loudly: if
// the orchestrator is gone or its inbox is full, entries are dropped.
type Bridge struct {
	kind        SinkKind
	contextName string
	pipeline    *ident.PipelineId

	out  chan<- Entry
	done <-chan struct{}

	panicking *atomic.Bool
	dropped   *atomic.Uint64
	attrs     []slog.Attr
}

// NewBridge creates a bridge for the named context. out is the
// orchestrator's fault inbox; done is closed when the orchestrator stops
// receiving. pipeline must be non-nil for SinkScript and nil otherwise.
func NewBridge(kind SinkKind, contextName string, pipeline *ident.PipelineId, out chan<- Entry, done <-chan struct{}) *Bridge {
	return &Bridge{
		kind:        kind,
		contextName: contextName,
		pipeline:    pipeline,
		out:         out,
		done:        done,
		panicking:   new(atomic.Bool),
		dropped:     new(atomic.Uint64),
	}
}

// Enabled reports false for anything below Warn; such records are
// dropped at the filter and never reach the orchestrator.
func (b *Bridge) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn
}

// Handle converts the record into a fault entry and sends it. An error
// record handled while this context is unwinding from a panic becomes a
// panic entry carrying the captured backtrace.
func (b *Bridge) Handle(_ context.Context, rec slog.Record) error {
	if rec.Level < slog.LevelWarn {
		return nil
	}

	msg := b.formatMessage(rec)
	var entry Entry
	switch {
	case rec.Level >= slog.LevelError && b.panicking.Load():
		entry = Panic(b.contextName, msg, string(debug.Stack()))
	case rec.Level >= slog.LevelError:
		entry = Error(b.contextName, msg)
	default:
		entry = Warning(b.contextName, msg)
	}
	if b.kind == SinkScript {
		entry.Pipeline = b.pipeline
	}

	b.send(entry)
	return nil
}

// WithAttrs returns a bridge that folds the attrs into every message.
func (b *Bridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *b
	clone.attrs = append(append([]slog.Attr(nil), b.attrs...), attrs...)
	return &clone
}

// WithGroup is accepted but groups are flattened; entries are plain text
// on the far side anyway.
func (b *Bridge) WithGroup(string) slog.Handler {
	return b
}

// CapturePanic is called from a deferred recover in the context's top
// frame. It marks the context as unwinding and routes the recovered
// value through the error path, producing a panic entry with the current
// backtrace.
func (b *Bridge) CapturePanic(recovered any) {
	b.panicking.Store(true)
	defer b.panicking.Store(false)

	rec := slog.NewRecord(time.Now(), slog.LevelError, fmt.Sprint(recovered), 0)
	_ = b.Handle(context.Background(), rec)
}

func (b *Bridge) formatMessage(rec slog.Record) string {
	var sb strings.Builder
	sb.WriteString(rec.Message)
	for _, attr := range b.attrs {
		fmt.Fprintf(&sb, " %s=%v", attr.Key, attr.Value)
	}
	rec.Attrs(func(attr slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", attr.Key, attr.Value)
		return true
	})
	return sb.String()
}

// Dropped reports how many entries were discarded because the
// orchestrator's fault inbox was full.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// send pushes the entry without waiting, dropping it if the
// orchestrator has gone away or its inbox is full. Logging must never
// crash or wedge the logging context.
func (b *Bridge) send(entry Entry) {
	select {
	case <-b.done:
	case b.out <- entry:
	default:
		b.dropped.Add(1)
	}
}

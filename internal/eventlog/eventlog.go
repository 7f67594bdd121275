// Package eventlog persists the orchestrator's supervisory trail —
// fault entries, hang alerts, and lifecycle transitions — as NDJSON so
// crash reporting and postmortems have something durable to read.
package eventlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emberweb/constellate/internal/fault"
	"github.com/emberweb/constellate/internal/hangmon"
	"github.com/emberweb/constellate/internal/ndjson"
)

// RecordKind tags a session-log record.
type RecordKind string

const (
	RecordKindFault     RecordKind = "fault"
	RecordKindHangAlert RecordKind = "hang_alert"
	RecordKindLifecycle RecordKind = "lifecycle"
)

// Record is the session-log envelope. Exactly one of Fault, Alert, or
// Phase is populated, selected by Kind.
type Record struct {
	Kind      RecordKind     `json:"kind"`
	SessionID string         `json:"session_id"`
	At        time.Time      `json:"at"`
	Fault     *fault.Entry   `json:"fault,omitempty"`
	Alert     *hangmon.Alert `json:"alert,omitempty"`
	Phase     string         `json:"phase,omitempty"`
}

// Log appends records to one session file. Safe for concurrent use.
type Log struct {
	sessionID string
	file      *os.File
	encoder   *ndjson.Encoder
	logger    *slog.Logger
	mu        sync.Mutex
}

// New opens (or creates) the log at path and starts a new session.
func New(path string, logger *slog.Logger) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return &Log{
		sessionID: uuid.NewString(),
		file:      file,
		encoder:   ndjson.NewEncoder(file, logger),
		logger:    logger,
	}, nil
}

// SessionID returns the id stamped on every record this log writes.
func (l *Log) SessionID() string {
	return l.sessionID
}

// WriteFault appends a fault record.
func (l *Log) WriteFault(entry fault.Entry) error {
	return l.write(Record{Kind: RecordKindFault, Fault: &entry})
}

// WriteAlert appends a hang-alert record.
func (l *Log) WriteAlert(alert hangmon.Alert) error {
	return l.write(Record{Kind: RecordKindHangAlert, Alert: &alert})
}

// WriteLifecycle appends a lifecycle transition, e.g. "running".
func (l *Log) WriteLifecycle(phase string) error {
	return l.write(Record{Kind: RecordKindLifecycle, Phase: phase})
}

func (l *Log) write(rec Record) error {
	rec.SessionID = l.sessionID
	rec.At = time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.encoder.Encode(rec)
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ReadAll decodes every record from r, for tooling and tests.
func ReadAll(r io.Reader) ([]Record, error) {
	dec := ndjson.NewDecoder(r)
	var records []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

package eventlog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/emberweb/constellate/internal/fault"
	"github.com/emberweb/constellate/internal/hangmon"
	"github.com/emberweb/constellate/internal/ident"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "session.ndjson")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	log, err := New(path, logger)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log, path
}

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer file.Close()
	records, err := ReadAll(file)
	if err != nil {
		t.Fatalf("failed to read records: %v", err)
	}
	return records
}

func TestWritesTaggedRecords(t *testing.T) {
	log, path := newTestLog(t)

	if err := log.WriteLifecycle("running"); err != nil {
		t.Fatalf("lifecycle write failed: %v", err)
	}
	if err := log.WriteFault(fault.Panic("script:(1,2)", "boom", "goroutine 1 [running]")); err != nil {
		t.Fatalf("fault write failed: %v", err)
	}
	alert := hangmon.Alert{
		Component: ident.ComponentId{Pipeline: ident.PipelineId{Namespace: 1, Index: 2}, Kind: ident.ComponentKindScript},
		Kind:      hangmon.AlertPermanent,
		Elapsed:   time.Second,
	}
	if err := log.WriteAlert(alert); err != nil {
		t.Fatalf("alert write failed: %v", err)
	}

	records := readRecords(t, path)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Kind != RecordKindLifecycle || records[0].Phase != "running" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].Kind != RecordKindFault || records[1].Fault == nil || records[1].Fault.Kind != fault.KindPanic {
		t.Errorf("unexpected fault record: %+v", records[1])
	}
	if records[2].Kind != RecordKindHangAlert || records[2].Alert == nil || records[2].Alert.Kind != hangmon.AlertPermanent {
		t.Errorf("unexpected alert record: %+v", records[2])
	}
}

func TestSessionIdStampedOnEveryRecord(t *testing.T) {
	log, path := newTestLog(t)

	log.WriteLifecycle("running")
	log.WriteLifecycle("stopped")

	for _, rec := range readRecords(t, path) {
		if rec.SessionID != log.SessionID() {
			t.Errorf("record carries session %q, want %q", rec.SessionID, log.SessionID())
		}
		if rec.At.IsZero() {
			t.Error("record missing timestamp")
		}
	}
}

func TestAppendsAcrossSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.ndjson")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first, err := New(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	first.WriteLifecycle("running")
	first.Close()

	second, err := New(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	second.WriteLifecycle("running")
	second.Close()

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	records, err := ReadAll(file)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records across sessions, got %d", len(records))
	}
	if records[0].SessionID == records[1].SessionID {
		t.Error("distinct sessions share an id")
	}
}

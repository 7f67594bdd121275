package crashreport

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/emberweb/constellate/internal/ndjson"
)

func TestReportsAreDurable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "crash.ndjson")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reporter, err := NewFileReporter(path, logger)
	if err != nil {
		t.Fatalf("failed to open reporter: %v", err)
	}
	reporter.Report("script:(1,2)", "engine died", "goroutine 7 [running]")
	reporter.Report("", "anonymous context died", "")
	if err := reporter.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to reopen reports: %v", err)
	}
	defer file.Close()

	dec := ndjson.NewDecoder(file)
	var first, second Report
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if err := dec.Decode(&second); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if first.ContextName != "script:(1,2)" || first.Message != "engine died" {
		t.Errorf("unexpected first report: %+v", first)
	}
	if first.Backtrace == "" || first.At.IsZero() {
		t.Errorf("first report missing detail: %+v", first)
	}
	if second.ContextName != "" {
		t.Errorf("unnamed context gained a name: %+v", second)
	}
	if err := dec.Decode(&Report{}); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

// Package crashreport generates durable reports for panics surfaced
// through fault aggregation.
package crashreport

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/emberweb/constellate/internal/ndjson"
)

// Report is one generated crash report.
type Report struct {
	ContextName string    `json:"context,omitempty"`
	Message     string    `json:"message"`
	Backtrace   string    `json:"backtrace,omitempty"`
	At          time.Time `json:"at"`
}

// FileReporter appends reports to an NDJSON file. A failed write is
// logged and dropped; crash reporting must never become its own crash.
type FileReporter struct {
	file    *os.File
	encoder *ndjson.Encoder
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewFileReporter opens (or creates) the report file at path.
func NewFileReporter(path string, logger *slog.Logger) (*FileReporter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open report file: %w", err)
	}
	return &FileReporter{
		file:    file,
		encoder: ndjson.NewEncoder(file, logger),
		logger:  logger,
	}, nil
}

// Report writes one crash report.
func (r *FileReporter) Report(contextName, message, backtrace string) {
	rec := Report{
		ContextName: contextName,
		Message:     message,
		Backtrace:   backtrace,
		At:          time.Now().UTC(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.encoder.Encode(rec); err != nil {
		r.logger.Warn("failed to write crash report", "error", err)
	}
}

// Close closes the report file.
func (r *FileReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

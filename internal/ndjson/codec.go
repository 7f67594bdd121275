// Package ndjson reads and writes newline-delimited JSON records, the
// on-disk format of the session log.
package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// MaxRecordSize caps one serialized record (256 KiB). Backtraces are the
// largest thing written here and stay well under this.
const MaxRecordSize = 256 * 1024

// Encoder writes one JSON document per line, flushing after each so a
// crash loses at most the record being written.
type Encoder struct {
	writer *bufio.Writer
	logger *slog.Logger
}

// NewEncoder creates an encoder over w.
func NewEncoder(w io.Writer, logger *slog.Logger) *Encoder {
	return &Encoder{writer: bufio.NewWriter(w), logger: logger}
}

// Encode writes v as a single line.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if len(data) > MaxRecordSize {
		e.logger.Error("record exceeds size limit", "size", len(data), "limit", MaxRecordSize)
		return fmt.Errorf("record size %d exceeds limit %d", len(data), MaxRecordSize)
	}
	if _, err := e.writer.Write(data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := e.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := e.writer.Flush(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	return nil
}

// Decoder reads records line by line. Empty lines are skipped.
type Decoder struct {
	scanner *bufio.Scanner
	lineNum int
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, MaxRecordSize), MaxRecordSize)
	return &Decoder{scanner: scanner}
}

// Decode reads the next record into v, returning io.EOF at end of input.
func (d *Decoder) Decode(v any) error {
	for d.scanner.Scan() {
		d.lineNum++
		data := d.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("unmarshal line %d: %w", d.lineNum, err)
		}
		return nil
	}
	if err := d.scanner.Err(); err != nil {
		return fmt.Errorf("scan line %d: %w", d.lineNum, err)
	}
	return io.EOF
}

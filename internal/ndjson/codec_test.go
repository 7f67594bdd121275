package ndjson

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, discardLogger())

	if err := enc.Encode(record{Name: "a", Count: 1}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := enc.Encode(record{Name: "b", Count: 2}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	dec := NewDecoder(&buf)
	var first, second record
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if err := dec.Decode(&second); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if first.Name != "a" || second.Count != 2 {
		t.Fatalf("round trip mangled records: %+v %+v", first, second)
	}
	if err := dec.Decode(&record{}); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestDecodeSkipsEmptyLines(t *testing.T) {
	dec := NewDecoder(strings.NewReader("\n\n{\"name\":\"a\",\"count\":1}\n\n"))
	var rec record
	if err := dec.Decode(&rec); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if rec.Name != "a" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestEncodeRejectsOversizedRecord(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, discardLogger())

	huge := record{Name: strings.Repeat("x", MaxRecordSize)}
	if err := enc.Encode(huge); err == nil {
		t.Fatal("expected oversized record to be rejected")
	}
	if buf.Len() != 0 {
		t.Error("rejected record still wrote bytes")
	}
}

func TestDecodeReportsMalformedLine(t *testing.T) {
	dec := NewDecoder(strings.NewReader("not json\n"))
	var rec record
	if err := dec.Decode(&rec); err == nil {
		t.Fatal("expected error for malformed line")
	}
}

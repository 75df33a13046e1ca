package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voltlog/voltlog/pkg/types"
)

func testRecord(ts string, extra map[string]string) types.Record {
	r := types.Record{types.FieldTimestamp: ts}
	for k, v := range extra {
		r[k] = v
	}
	return r
}

func TestFileSink_TruncatesAtStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte(`[{"stale":"record"}]`), 0o644); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	_, err := NewFile(FileConfig{Path: path, Pretty: true, Atomic: true})
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read sink file: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("Sink file = %q, want empty array", data)
	}
}

func TestFileSink_WriteRewritesWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	s, err := NewFile(FileConfig{Path: path, Pretty: true, Atomic: true})
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}

	ctx := context.Background()
	log := []types.Record{
		testRecord("2024-06-01T12:30:00.000000", map[string]string{"DutyCycle": "75"}),
	}

	if err := s.Write(ctx, log); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	log = append(log, testRecord("2024-06-01T12:30:01.000000", map[string]string{"DutyCycle": "76"}))
	if err := s.Write(ctx, log); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read sink file: %v", err)
	}

	var got []types.Record
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Sink file is not valid JSON: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Sink file holds %d records, want 2", len(got))
	}
	if got[1]["DutyCycle"] != "76" {
		t.Errorf("Last record DutyCycle = %q, want 76", got[1]["DutyCycle"])
	}

	// Pretty output uses 4-space indentation.
	if !strings.Contains(string(data), "\n    {") {
		t.Errorf("Sink file is not indented with 4 spaces:\n%s", data)
	}
}

func TestFileSink_IdempotentRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	s, err := NewFile(FileConfig{Path: path, Pretty: true, Atomic: true})
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}

	ctx := context.Background()
	log := []types.Record{
		testRecord("2024-06-01T12:30:00.000000", map[string]string{
			"LowSideVoltage": "12.1",
			"DutyCycle":      "75",
		}),
	}

	if err := s.Write(ctx, log); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read sink file: %v", err)
	}

	if err := s.Write(ctx, log); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read sink file: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("Writing the same log twice produced different bytes")
	}
}

func TestFileSink_AtomicLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	s, err := NewFile(FileConfig{Path: path, Pretty: false, Atomic: true})
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}

	if err := s.Write(context.Background(), []types.Record{
		testRecord("2024-06-01T12:30:00.000000", nil),
	}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file left behind after atomic write")
	}
}

func TestFileSink_RequiresPath(t *testing.T) {
	if _, err := NewFile(FileConfig{}); err == nil {
		t.Error("Expected error for empty sink path")
	}
}

func TestNDJSONSink_AppendsDelta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.ndjson")
	s, err := NewNDJSON(path)
	if err != nil {
		t.Fatalf("NewNDJSON() error = %v", err)
	}

	ctx := context.Background()
	log := []types.Record{
		testRecord("2024-06-01T12:30:00.000000", map[string]string{"DutyCycle": "75"}),
	}
	if err := s.Write(ctx, log); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	log = append(log, testRecord("2024-06-01T12:30:01.000000", map[string]string{"DutyCycle": "76"}))
	if err := s.Write(ctx, log); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read sink file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Sink file holds %d lines, want 2", len(lines))
	}
	var rec types.Record
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("Line 2 is not valid JSON: %v", err)
	}
	if rec["DutyCycle"] != "76" {
		t.Errorf("Last record DutyCycle = %q, want 76", rec["DutyCycle"])
	}
}

func TestNDJSONSink_RestartsAfterRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.ndjson")
	s, err := NewNDJSON(path)
	if err != nil {
		t.Fatalf("NewNDJSON() error = %v", err)
	}

	ctx := context.Background()
	log := []types.Record{
		testRecord("2024-06-01T12:30:00.000000", nil),
		testRecord("2024-06-01T12:30:01.000000", nil),
	}
	if err := s.Write(ctx, log); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// Shorter snapshot means the in-memory log was rotated.
	rotated := []types.Record{testRecord("2024-06-01T12:30:02.000000", nil)}
	if err := s.Write(ctx, rotated); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read sink file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("Sink file holds %d lines after rotation, want 1", len(lines))
	}
}

func TestMulti_ContinuesPastFailingSink(t *testing.T) {
	var buf bytes.Buffer
	good := NewWriter(&buf)

	// A file sink pointed at a directory fails on write.
	dir := t.TempDir()
	bad := &FileSink{cfg: FileConfig{Path: dir, Atomic: false}}

	m := NewMulti(bad, good)
	err := m.Write(context.Background(), []types.Record{
		testRecord("2024-06-01T12:30:00.000000", nil),
	})
	if err == nil {
		t.Error("Expected aggregate error from failing sink")
	}
	if buf.Len() == 0 {
		t.Error("Healthy sink was not written after sibling failure")
	}
}

package recorder

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voltlog/voltlog/internal/archive"
	"github.com/voltlog/voltlog/internal/logging"
	"github.com/voltlog/voltlog/internal/metrics"
	"github.com/voltlog/voltlog/internal/parser"
	"github.com/voltlog/voltlog/internal/reject"
	"github.com/voltlog/voltlog/internal/sink"
	"github.com/voltlog/voltlog/pkg/types"
)

const completeLine = "LowSideVoltage:12.10\tLowSideCurrent:1.50\tHighSideVoltage:24.30\tHighSideCurrent:0.74\tDutyCycle:75"

func testParser(t *testing.T) *parser.LineParser {
	t.Helper()
	p, err := parser.New(parser.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}
	p.SetNow(func() time.Time {
		return time.Date(2024, 6, 1, 12, 30, 0, 0, time.Local)
	})
	return p
}

func testRecorder(t *testing.T, cfg Config, opts ...Option) (*Recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	fs, err := sink.NewFile(sink.FileConfig{Path: path, Pretty: true, Atomic: true})
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	logger := logging.New(logging.Config{Level: "error", Format: "json"})
	return New(cfg, testParser(t), fs, metrics.NewCollector(), logger, opts...), path
}

func TestRecorder_AcceptAppendsAndWritesThrough(t *testing.T) {
	r, path := testRecorder(t, DefaultConfig())

	err := r.Process(context.Background(), &types.RawLine{Text: completeLine, Source: "serial"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read sink file: %v", err)
	}

	var got []types.Record
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Sink file is not a JSON array: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Sink file holds %d records, want 1", len(got))
	}
	if got[0]["DutyCycle"] != "75" {
		t.Errorf("DutyCycle = %q, want 75", got[0]["DutyCycle"])
	}
	if got[0]["timestamp"] != "2024-06-01T12:30:00.000000" {
		t.Errorf("timestamp = %q", got[0]["timestamp"])
	}
}

func TestRecorder_DiscardsIncompleteLine(t *testing.T) {
	r, _ := testRecorder(t, DefaultConfig())

	if err := r.Process(context.Background(), &types.RawLine{Text: "DutyCycle:75"}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if err := r.Process(context.Background(), &types.RawLine{Text: ""}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRecorder_DiscardGoesToRejectLog(t *testing.T) {
	dir := t.TempDir()
	rl, err := reject.New(reject.Config{Enabled: true, Dir: dir, MaxEntries: 10})
	if err != nil {
		t.Fatalf("Failed to create reject log: %v", err)
	}
	defer rl.Close()

	r, _ := testRecorder(t, DefaultConfig(), WithRejectLog(rl))

	if err := r.Process(context.Background(), &types.RawLine{Text: "Safety Shutoff Triggered", Source: "serial"}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if rl.Size() != 1 {
		t.Errorf("Reject log size = %d, want 1", rl.Size())
	}
}

func TestRecorder_RotatesIntoArchive(t *testing.T) {
	dir := t.TempDir()
	arch, err := archive.New(archive.Config{Dir: dir, Compression: "gzip"})
	if err != nil {
		t.Fatalf("Failed to create archiver: %v", err)
	}

	r, path := testRecorder(t, Config{MaxRecords: 2}, WithArchiver(arch))

	for i := 0; i < 3; i++ {
		if err := r.Process(context.Background(), &types.RawLine{Text: completeLine}); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
	}

	// The second record triggers rotation, leaving only the third live.
	if r.Len() != 1 {
		t.Errorf("Len() = %d after rotation, want 1", r.Len())
	}

	segments, err := filepath.Glob(filepath.Join(dir, "records-*.ndjson.gz"))
	if err != nil || len(segments) != 1 {
		t.Fatalf("Archive segments = %v (err %v), want exactly one", segments, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read sink file: %v", err)
	}
	var got []types.Record
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Sink file is not a JSON array: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Sink file holds %d records after rotation, want 1", len(got))
	}
}

type captureForwarder struct {
	records []types.Record
}

func (c *captureForwarder) Forward(record types.Record) error {
	c.records = append(c.records, record)
	return nil
}

func TestRecorder_ForwardsAcceptedRecords(t *testing.T) {
	fwd := &captureForwarder{}
	r, _ := testRecorder(t, DefaultConfig(), WithForwarder(fwd))

	if err := r.Process(context.Background(), &types.RawLine{Text: completeLine}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if err := r.Process(context.Background(), &types.RawLine{Text: "noise"}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(fwd.records) != 1 {
		t.Fatalf("Forwarded %d records, want 1", len(fwd.records))
	}
	if fwd.records[0]["LowSideVoltage"] != "12.10" {
		t.Errorf("Forwarded LowSideVoltage = %q", fwd.records[0]["LowSideVoltage"])
	}
}

func TestRecorder_SnapshotIsACopy(t *testing.T) {
	r, _ := testRecorder(t, DefaultConfig())

	if err := r.Process(context.Background(), &types.RawLine{Text: completeLine}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	snap := r.Snapshot()
	snap[0]["DutyCycle"] = "0"

	if r.Snapshot()[0]["DutyCycle"] != "75" {
		t.Error("Mutating a snapshot changed the record log")
	}
}

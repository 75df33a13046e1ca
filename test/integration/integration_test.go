//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voltlog/voltlog/internal/input"
	"github.com/voltlog/voltlog/internal/logging"
	"github.com/voltlog/voltlog/internal/metrics"
	"github.com/voltlog/voltlog/internal/parser"
	"github.com/voltlog/voltlog/internal/recorder"
	"github.com/voltlog/voltlog/internal/sink"
	"github.com/voltlog/voltlog/pkg/types"
)

const telemetryLine = "LowSideVoltage:12.10\tLowSideCurrent:1.50\tHighSideVoltage:24.30\tHighSideCurrent:0.74\tDutyCycle:75\r\n"

// TestReplayPipeline drives the full pipeline from a capture file to the
// JSON array on disk.
func TestReplayPipeline(t *testing.T) {
	tmpDir := t.TempDir()
	captureFile := filepath.Join(tmpDir, "capture.txt")
	dataFile := filepath.Join(tmpDir, "data.json")

	content := telemetryLine +
		"Duty cycle +\r\n" +
		telemetryLine
	if err := os.WriteFile(captureFile, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write capture file: %v", err)
	}

	logger := logging.New(logging.Config{Level: "error", Format: "json"})

	in := input.NewReplayInput("bench", input.ReplayConfig{Path: captureFile}, logger)
	if err := in.Start(); err != nil {
		t.Fatalf("Failed to start replay input: %v", err)
	}
	defer in.Stop()

	p, err := parser.New(parser.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	fs, err := sink.NewFile(sink.FileConfig{Path: dataFile, Pretty: true, Atomic: true})
	if err != nil {
		t.Fatalf("Failed to create file sink: %v", err)
	}
	defer fs.Close()

	rec := recorder.New(recorder.DefaultConfig(), p, fs, metrics.NewCollector(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx, in)
		close(done)
	}()

	waitFor(t, 5*time.Second, func() bool { return rec.Len() == 2 })

	cancel()
	<-done

	data, err := os.ReadFile(dataFile)
	if err != nil {
		t.Fatalf("Failed to read data file: %v", err)
	}

	var records []types.Record
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("Data file is not a JSON array: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Data file holds %d records, want 2", len(records))
	}
	for _, r := range records {
		if r["DutyCycle"] != "75" {
			t.Errorf("DutyCycle = %q, want 75", r["DutyCycle"])
		}
		if r["timestamp"] == "" {
			t.Error("Record is missing a timestamp")
		}
	}
}

// TestTCPPipeline drives the pipeline through a live TCP connection.
func TestTCPPipeline(t *testing.T) {
	tmpDir := t.TempDir()
	dataFile := filepath.Join(tmpDir, "data.json")

	logger := logging.New(logging.Config{Level: "error", Format: "json"})

	in := input.NewTCPInput("bridge", input.TCPConfig{Address: "127.0.0.1:0"}, logger)
	if err := in.Start(); err != nil {
		t.Fatalf("Failed to start TCP input: %v", err)
	}
	defer in.Stop()

	p, err := parser.New(parser.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	fs, err := sink.NewFile(sink.FileConfig{Path: dataFile, Pretty: true, Atomic: true})
	if err != nil {
		t.Fatalf("Failed to create file sink: %v", err)
	}
	defer fs.Close()

	rec := recorder.New(recorder.DefaultConfig(), p, fs, metrics.NewCollector(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx, in)

	conn, err := net.Dial("tcp", in.Addr())
	if err != nil {
		t.Fatalf("Failed to dial input: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 3; i++ {
		if _, err := conn.Write([]byte(telemetryLine)); err != nil {
			t.Fatalf("Failed to write line: %v", err)
		}
	}

	waitFor(t, 5*time.Second, func() bool { return rec.Len() == 3 })
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

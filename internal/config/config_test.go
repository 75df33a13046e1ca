package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/voltlog/voltlog/internal/parser"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: console
inputs:
  serial:
    - name: atverter
      device: /dev/ttyUSB1
      baud: 115200
  tcp:
    - name: bridge
      address: 0.0.0.0:5140
parser:
  mode: permissive
sink:
  file:
    path: /tmp/data.json
    pretty: true
    atomic: true
  ndjson: /tmp/records.ndjson
archive:
  dir: /tmp/archive
  max_records: 10000
  compression: snappy
forward:
  enabled: true
  brokers: ["kafka:9092"]
  topic: telemetry
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if len(cfg.Inputs.Serial) != 1 || cfg.Inputs.Serial[0].Device != "/dev/ttyUSB1" {
		t.Errorf("Serial inputs = %+v", cfg.Inputs.Serial)
	}
	if cfg.Inputs.Serial[0].Baud != 115200 {
		t.Errorf("Baud = %d", cfg.Inputs.Serial[0].Baud)
	}
	if cfg.Parser.Mode != parser.ModePermissive {
		t.Errorf("Parser mode = %v", cfg.Parser.Mode)
	}
	if cfg.Sink.File.Path != "/tmp/data.json" || cfg.Sink.NDJSON != "/tmp/records.ndjson" {
		t.Errorf("Sink = %+v", cfg.Sink)
	}
	if cfg.Archive == nil || cfg.Archive.MaxRecords != 10000 {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	// Rotation threshold flows from the archive section.
	if cfg.Recorder.MaxRecords != 10000 {
		t.Errorf("Recorder.MaxRecords = %d, want 10000", cfg.Recorder.MaxRecords)
	}
	if cfg.Forward == nil || !cfg.Forward.Enabled || cfg.Forward.Topic != "telemetry" {
		t.Errorf("Forward = %+v", cfg.Forward)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
inputs:
  serial:
    - name: atverter
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging defaults = %+v", cfg.Logging)
	}
	if cfg.Inputs.Serial[0].Device != "/dev/ttyUSB0" {
		t.Errorf("Default device = %q", cfg.Inputs.Serial[0].Device)
	}
	if cfg.Inputs.Serial[0].Baud != 38400 {
		t.Errorf("Default baud = %d", cfg.Inputs.Serial[0].Baud)
	}
	if cfg.Parser.Mode != parser.ModeStrict {
		t.Errorf("Default parser mode = %v", cfg.Parser.Mode)
	}
	if cfg.Sink.File.Path != "/var/www/html/data.json" {
		t.Errorf("Default sink path = %q", cfg.Sink.File.Path)
	}
	if !cfg.Sink.File.Pretty || !cfg.Sink.File.Atomic {
		t.Errorf("Default sink flags = %+v", cfg.Sink.File)
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("Default server address = %q", cfg.Server.Address)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("Default retry = %+v", cfg.Retry)
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("VOLTLOG_DEVICE", "/dev/ttyACM3")

	path := writeConfig(t, `
inputs:
  serial:
    - name: atverter
      device: ${VOLTLOG_DEVICE}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Inputs.Serial[0].Device != "/dev/ttyACM3" {
		t.Errorf("Device = %q, want /dev/ttyACM3", cfg.Inputs.Serial[0].Device)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no inputs", `
logging:
  level: info
`},
		{"unnamed tcp input", `
inputs:
  tcp:
    - address: 0.0.0.0:5140
`},
		{"tcp input without address", `
inputs:
  tcp:
    - name: bridge
`},
		{"bad parser mode", `
inputs:
  serial:
    - name: atverter
parser:
  mode: lenient
`},
		{"bad log level", `
logging:
  level: verbose
inputs:
  serial:
    - name: atverter
`},
		{"forward without brokers", `
inputs:
  serial:
    - name: atverter
forward:
  enabled: true
  brokers: []
  topic: telemetry
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load() succeeded, want error")
			}
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}

	if len(cfg.Inputs.Serial) != 1 || cfg.Inputs.Serial[0].Name != "atverter" {
		t.Errorf("Default inputs = %+v", cfg.Inputs)
	}
	if cfg.Sink.File.Path != "/var/www/html/data.json" {
		t.Errorf("Default sink path = %q", cfg.Sink.File.Path)
	}
}

func TestLoadOrDefault_InvalidFileIsAnError(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad parser mode", `
inputs:
  serial:
    - name: atverter
parser:
  mode: grok
`},
		{"broken yaml", "inputs: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := LoadOrDefault(path); err == nil {
				t.Error("LoadOrDefault() returned defaults for a present but invalid file")
			}
		})
	}
}

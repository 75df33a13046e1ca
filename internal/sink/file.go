package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/voltlog/voltlog/pkg/types"
)

// jsonIndent is the indentation used for the pretty-printed record array.
const jsonIndent = "    "

// FileConfig holds configuration for the JSON array file sink
type FileConfig struct {
	// Path is the JSON file rewritten on every accepted record. The
	// default lands in a web server's document root so the record log is
	// servable as a static artifact.
	Path string `yaml:"path"`

	// Pretty enables indented output
	Pretty bool `yaml:"pretty"`

	// Atomic writes to a temp file and renames it into place so readers
	// never observe a partially written array.
	Atomic bool `yaml:"atomic"`
}

// DefaultFileConfig returns the deployment defaults
func DefaultFileConfig() FileConfig {
	return FileConfig{
		Path:   "/var/www/html/data.json",
		Pretty: true,
		Atomic: true,
	}
}

// FileSink persists the record log as a single JSON array, rewritten
// wholesale on every write.
type FileSink struct {
	cfg FileConfig
	mu  sync.Mutex
}

// NewFile creates the file sink and truncates the target to an empty array,
// discarding any records from a previous run.
func NewFile(cfg FileConfig) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file sink path is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sink directory: %w", err)
		}
	}

	s := &FileSink{cfg: cfg}
	if err := s.Write(context.Background(), nil); err != nil {
		return nil, fmt.Errorf("failed to initialize sink file: %w", err)
	}

	return s, nil
}

// Write rewrites the whole file from the snapshot. Writing the same
// snapshot twice produces byte-identical output: map keys marshal in
// sorted order and the timestamp is part of each record.
func (s *FileSink) Write(ctx context.Context, records []types.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if records == nil {
		records = []types.Record{}
	}

	var data []byte
	var err error
	if s.cfg.Pretty {
		data, err = json.MarshalIndent(records, "", jsonIndent)
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal record log: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Atomic {
		return os.WriteFile(s.cfg.Path, data, 0o644)
	}

	tmp := s.cfg.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.cfg.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Close is a no-op; the sink holds no open handle between writes.
func (s *FileSink) Close() error {
	return nil
}

// Name returns the sink name
func (s *FileSink) Name() string {
	return "file"
}

// Path returns the sink file path
func (s *FileSink) Path() string {
	return s.cfg.Path
}

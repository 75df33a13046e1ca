// Package archive rotates full record-log snapshots into compressed
// NDJSON segments so the live, fully-rewritten JSON artifact stays
// bounded.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/voltlog/voltlog/pkg/types"
)

// segmentTimeFormat names archive segments sortably.
const segmentTimeFormat = "20060102T150405"

// Config holds archiver configuration
type Config struct {
	// Dir is where segments are written
	Dir string `yaml:"dir"`

	// MaxRecords is the live-log record count that triggers rotation.
	// Zero disables archiving entirely and the live log grows without
	// bound, which is the historical behavior.
	MaxRecords int `yaml:"max_records"`

	// Compression selects the segment codec (none, gzip, snappy)
	Compression CompressionType `yaml:"compression,omitempty"`
}

// Archiver writes rotated record-log segments.
type Archiver struct {
	dir  string
	comp Compressor
	now  func() time.Time
}

// New creates an archiver, creating the segment directory if needed.
func New(cfg Config) (*Archiver, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}

	comp, err := GetCompressor(cfg.Compression)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &Archiver{
		dir:  cfg.Dir,
		comp: comp,
		now:  time.Now,
	}, nil
}

// SetNow overrides the clock used to name segments. Intended for tests.
func (a *Archiver) SetNow(now func() time.Time) {
	a.now = now
}

// Archive writes the records as one NDJSON segment and returns its path.
func (a *Archiver) Archive(records []types.Record) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("nothing to archive")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return "", fmt.Errorf("failed to encode record: %w", err)
		}
	}

	data, err := a.comp.Compress(buf.Bytes())
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("records-%s.ndjson%s", a.now().Format(segmentTimeFormat), a.comp.Ext())
	path := filepath.Join(a.dir, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write segment: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to rename segment: %w", err)
	}

	return path, nil
}

// Read loads a segment back into records. Used for inspection and tests.
func (a *Archiver) Read(path string) ([]types.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment: %w", err)
	}

	data, err := a.comp.Decompress(raw)
	if err != nil {
		return nil, err
	}

	var records []types.Record
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var record types.Record
		if err := dec.Decode(&record); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}

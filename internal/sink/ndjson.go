package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/voltlog/voltlog/pkg/types"
)

// NDJSONSink appends one JSON object per line instead of rewriting the
// whole log on every record. It tracks how many records it has already
// written and only appends the tail of each snapshot.
type NDJSONSink struct {
	path    string
	file    *os.File
	writer  *bufio.Writer
	written int
	mu      sync.Mutex
}

// NewNDJSON creates the sink, truncating any file from a previous run.
func NewNDJSON(path string) (*NDJSONSink, error) {
	if path == "" {
		return nil, fmt.Errorf("ndjson sink path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sink directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open sink file: %w", err)
	}

	return &NDJSONSink{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Write appends the records not yet on disk. A snapshot shorter than what
// was already written means the log was rotated; the file starts over.
func (s *NDJSONSink) Write(ctx context.Context, records []types.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("ndjson sink is closed")
	}

	if len(records) < s.written {
		if err := s.restart(); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(s.writer)
	for _, record := range records[s.written:] {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	s.written = len(records)

	return s.writer.Flush()
}

// restart truncates the file after a log rotation (must hold the lock).
func (s *NDJSONSink) restart() error {
	if err := s.writer.Flush(); err != nil {
		return err
	}
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate sink file: %w", err)
	}
	if _, err := s.file.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind sink file: %w", err)
	}
	s.written = 0
	return nil
}

// Close flushes and closes the file
func (s *NDJSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	if err := s.writer.Flush(); err != nil {
		s.file.Close()
		s.file = nil
		return err
	}

	err := s.file.Close()
	s.file = nil
	return err
}

// Name returns the sink name
func (s *NDJSONSink) Name() string {
	return "ndjson"
}

// Package reject keeps discarded telemetry lines for inspection. The core
// parsing contract drops incomplete lines silently; the reject log is an
// opt-in side channel so a misbehaving firmware build can be diagnosed
// without changing that contract.
package reject

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	ErrClosed = errors.New("reject log is closed")
	ErrFull   = errors.New("reject log is full")
)

// Config holds reject log configuration
type Config struct {
	Enabled       bool          `yaml:"enabled"`
	Dir           string        `yaml:"dir"`
	MaxEntries    int           `yaml:"max_entries,omitempty"`
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// Entry records one discarded line and why it was dropped
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Line      string    `json:"line"`
	Source    string    `json:"source"`
	Reason    string    `json:"reason"`
}

// Log buffers discarded lines and periodically persists them as NDJSON.
type Log struct {
	config Config

	mu      sync.Mutex
	entries []Entry
	closed  bool
	closeCh chan struct{}

	added   uint64
	dropped uint64
}

// New creates a reject log rooted at cfg.Dir
func New(cfg Config) (*Log, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("reject log directory is required")
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reject directory: %w", err)
	}

	l := &Log{
		config:  cfg,
		closeCh: make(chan struct{}),
	}

	go l.flushLoop()

	return l, nil
}

// Add records a discarded line
func (l *Log) Add(line, source, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if len(l.entries) >= l.config.MaxEntries {
		l.dropped++
		return ErrFull
	}

	l.entries = append(l.entries, Entry{
		Timestamp: time.Now(),
		Line:      line,
		Source:    source,
		Reason:    reason,
	})
	l.added++

	return nil
}

// Size returns the number of buffered entries
func (l *Log) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Flush persists buffered entries to disk
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flush()
}

// Close flushes remaining entries and stops the background flusher
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	l.closed = true
	close(l.closeCh)

	return l.flush()
}

// flush writes all entries to reject.ndjson via temp file and rename
// (must be called with the lock held).
func (l *Log) flush() error {
	path := filepath.Join(l.config.Dir, "reject.ndjson")
	tmp := path + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	for _, entry := range l.entries {
		if err := enc.Encode(entry); err != nil {
			file.Close()
			os.Remove(tmp)
			return fmt.Errorf("failed to encode entry: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync file: %w", err)
	}
	file.Close()

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// flushLoop periodically persists entries
func (l *Log) flushLoop() {
	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			_ = l.flush()
			l.mu.Unlock()
		case <-l.closeCh:
			return
		}
	}
}

// Stats holds reject log counters
type Stats struct {
	Added   uint64
	Dropped uint64
	Size    int
}

// Stats returns current counters
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Added:   l.added,
		Dropped: l.dropped,
		Size:    len(l.entries),
	}
}

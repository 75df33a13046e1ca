package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/voltlog/voltlog/pkg/types"
)

// StdoutSink writes each newly accepted record as single-line JSON,
// mirroring the diagnostic echo of the original logging scripts. Mostly
// useful for debugging a deployment.
type StdoutSink struct {
	out     io.Writer
	written int
	mu      sync.Mutex
}

// NewStdout creates a sink writing to standard output
func NewStdout() *StdoutSink {
	return &StdoutSink{out: os.Stdout}
}

// NewWriter creates a stdout-style sink writing to w
func NewWriter(w io.Writer) *StdoutSink {
	return &StdoutSink{out: w}
}

// Write emits the records not yet printed
func (s *StdoutSink) Write(ctx context.Context, records []types.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(records) < s.written {
		s.written = 0
	}

	enc := json.NewEncoder(s.out)
	for _, record := range records[s.written:] {
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	s.written = len(records)

	return nil
}

// Close is a no-op
func (s *StdoutSink) Close() error {
	return nil
}

// Name returns the sink name
func (s *StdoutSink) Name() string {
	return "stdout"
}

package sink

import (
	"context"
	"fmt"

	"github.com/voltlog/voltlog/pkg/types"
)

// Multi fans a snapshot out to several sinks sequentially. A failing sink
// does not stop the others; errors are collected and returned together.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Write writes the snapshot to every sink
func (m *Multi) Write(ctx context.Context, records []types.Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, records); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to write to %d sinks: %v", len(errs), errs)
	}
	return nil
}

// Close closes every sink
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close %d sinks: %v", len(errs), errs)
	}
	return nil
}

// Name returns the sink name
func (m *Multi) Name() string {
	return "multi"
}

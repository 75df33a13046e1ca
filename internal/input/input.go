package input

import (
	"context"
	"strings"

	"github.com/voltlog/voltlog/internal/metrics"
	"github.com/voltlog/voltlog/pkg/types"
)

// Input defines the interface that all line sources must implement
type Input interface {
	// Name returns the name of the input
	Name() string

	// Type returns the input type (serial, tcp, replay)
	Type() string

	// Start begins producing raw lines on the Lines channel
	Start() error

	// Stop stops the input gracefully
	Stop() error

	// Lines returns the channel of raw lines
	Lines() <-chan *types.RawLine

	// Health returns the health status of the input
	Health() Health
}

// Health represents the health status of an input
type Health struct {
	Status  HealthStatus           `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthStatus represents the status of a health check
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// BaseInput provides common functionality for all inputs
type BaseInput struct {
	ctx       context.Context
	cancel    context.CancelFunc
	lineCh    chan *types.RawLine
	name      string
	inputType string
	collector *metrics.Collector
}

// NewBaseInput creates a new BaseInput
func NewBaseInput(name, inputType string, bufferSize int) *BaseInput {
	ctx, cancel := context.WithCancel(context.Background())
	return &BaseInput{
		ctx:       ctx,
		cancel:    cancel,
		lineCh:    make(chan *types.RawLine, bufferSize),
		name:      name,
		inputType: inputType,
	}
}

// Name returns the name of the input
func (b *BaseInput) Name() string {
	return b.name
}

// Type returns the type of the input
func (b *BaseInput) Type() string {
	return b.inputType
}

// Lines returns the channel of raw lines
func (b *BaseInput) Lines() <-chan *types.RawLine {
	return b.lineCh
}

// Context returns the context
func (b *BaseInput) Context() context.Context {
	return b.ctx
}

// Cancel cancels the context
func (b *BaseInput) Cancel() {
	b.cancel()
}

// UseMetrics attaches the collector so the input reports drops and read
// errors. Without it the input keeps only its private counters.
func (b *BaseInput) UseMetrics(c *metrics.Collector) {
	b.collector = c
}

// CountReadError records a failed read against the collector
func (b *BaseInput) CountReadError() {
	if b.collector != nil {
		b.collector.InputReadErrors.WithLabelValues(b.name, b.inputType).Inc()
	}
}

// SendLine sends a raw line to the channel. A false return means the line
// was lost; it is counted as a drop.
func (b *BaseInput) SendLine(line *types.RawLine) bool {
	select {
	case b.lineCh <- line:
		return true
	case <-b.ctx.Done():
		if b.collector != nil {
			b.collector.InputLinesDropped.WithLabelValues(b.name, b.inputType).Inc()
		}
		return false
	}
}

// Close closes the line channel
func (b *BaseInput) Close() {
	close(b.lineCh)
}

// sanitize decodes a received chunk leniently: invalid UTF-8 bytes are
// dropped (never fatal) and surrounding whitespace, including the CR of a
// CRLF terminator, is trimmed.
func sanitize(raw string) string {
	return strings.TrimSpace(strings.ToValidUTF8(raw, ""))
}

package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voltlog/voltlog/internal/archive"
	"github.com/voltlog/voltlog/internal/input"
	"github.com/voltlog/voltlog/internal/logging"
	"github.com/voltlog/voltlog/internal/metrics"
	"github.com/voltlog/voltlog/internal/parser"
	"github.com/voltlog/voltlog/internal/reject"
	"github.com/voltlog/voltlog/internal/reliability"
	"github.com/voltlog/voltlog/internal/sink"
	"github.com/voltlog/voltlog/pkg/types"
)

// Discard reasons reported in metrics and reject entries.
const (
	ReasonEmpty         = "empty"
	ReasonMissingFields = "missing_required_fields"
)

// Forwarder publishes an accepted record to an external system.
type Forwarder interface {
	Forward(record types.Record) error
}

// Config contains recorder configuration
type Config struct {
	// MaxRecords caps the in-memory record log. When the cap is reached the
	// log is rotated into the archive and restarted. Zero means unbounded.
	MaxRecords int `yaml:"max_records"`
}

// DefaultConfig returns default recorder configuration
func DefaultConfig() Config {
	return Config{MaxRecords: 0}
}

// Recorder owns the record log. It consumes raw lines, parses them, appends
// accepted records and writes the full snapshot through to the sink before
// handling the next line.
type Recorder struct {
	config    Config
	parser    *parser.LineParser
	sink      sink.Sink
	rejects   *reject.Log
	archiver  *archive.Archiver
	forwarder Forwarder
	collector *metrics.Collector
	retry     reliability.RetryConfig
	logger    *logging.Logger

	mu      sync.RWMutex
	records []types.Record
	wg      sync.WaitGroup
}

// Option configures optional recorder collaborators
type Option func(*Recorder)

// WithRejectLog attaches a reject log for discarded lines
func WithRejectLog(l *reject.Log) Option {
	return func(r *Recorder) { r.rejects = l }
}

// WithArchiver attaches an archiver used when the record log rotates
func WithArchiver(a *archive.Archiver) Option {
	return func(r *Recorder) { r.archiver = a }
}

// WithForwarder attaches a forwarder for accepted records
func WithForwarder(f Forwarder) Option {
	return func(r *Recorder) { r.forwarder = f }
}

// WithRetry overrides the sink write retry policy
func WithRetry(cfg reliability.RetryConfig) Option {
	return func(r *Recorder) { r.retry = cfg }
}

// New creates a new recorder
func New(config Config, p *parser.LineParser, s sink.Sink, collector *metrics.Collector, logger *logging.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		config:    config,
		parser:    p,
		sink:      s,
		collector: collector,
		retry:     reliability.DefaultRetryConfig(),
		logger:    logger.WithComponent("recorder"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run consumes lines from the given inputs until the context is cancelled
// or every input channel is closed.
func (r *Recorder) Run(ctx context.Context, inputs ...input.Input) {
	for _, in := range inputs {
		r.wg.Add(1)
		go r.consume(ctx, in)
	}
	r.wg.Wait()
}

func (r *Recorder) consume(ctx context.Context, in input.Input) {
	defer r.wg.Done()

	name, typ := in.Name(), in.Type()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-in.Lines():
			if !ok {
				return
			}
			r.collector.InputLinesReceived.WithLabelValues(name, typ).Inc()
			r.collector.InputBytesReceived.WithLabelValues(name, typ).Add(float64(len(line.Text)))
			if err := r.Process(ctx, line); err != nil {
				r.logger.Error().Err(err).Str("input", name).Msg("Failed to process line")
			}
		}
	}
}

// Process handles a single raw line: parse, append on accept, rotate if the
// log is full, then write the snapshot through to the sink.
func (r *Recorder) Process(ctx context.Context, line *types.RawLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if line.Text == "" {
		r.discard(line, ReasonEmpty)
		return nil
	}

	start := time.Now()
	record := r.parser.Parse(line.Text)
	r.collector.ParserDuration.Observe(time.Since(start).Seconds())

	if record == nil {
		r.discard(line, ReasonMissingFields)
		return nil
	}

	r.collector.ParserRecordsAccepted.Inc()
	r.records = append(r.records, record)

	if r.config.MaxRecords > 0 && len(r.records) >= r.config.MaxRecords {
		if err := r.rotate(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to rotate record log")
		}
	}

	r.collector.LogRecords.Set(float64(len(r.records)))

	if err := r.writeSnapshot(ctx); err != nil {
		return err
	}

	if r.forwarder != nil {
		if err := r.forwarder.Forward(record); err != nil {
			r.collector.ForwardRecordsFailed.Inc()
			r.logger.Warn().Err(err).Msg("Failed to forward record")
		} else {
			r.collector.ForwardRecordsSent.Inc()
		}
	}

	return nil
}

func (r *Recorder) discard(line *types.RawLine, reason string) {
	r.collector.ParserLinesDiscarded.WithLabelValues(reason).Inc()
	r.logger.Debug().Str("reason", reason).Str("line", line.Text).Msg("Line discarded")

	if r.rejects == nil {
		return
	}
	if err := r.rejects.Add(line.Text, line.Source, reason); err != nil {
		r.collector.RejectEntriesDropped.Inc()
		return
	}
	r.collector.RejectEntriesWritten.Inc()
}

// rotate archives the current records and restarts the log. Callers hold the
// write lock. Without an archiver the oldest half is dropped instead so the
// log stays bounded.
func (r *Recorder) rotate() error {
	if r.archiver == nil {
		keep := len(r.records) / 2
		r.records = append([]types.Record(nil), r.records[len(r.records)-keep:]...)
		return nil
	}

	path, err := r.archiver.Archive(r.records)
	if err != nil {
		return fmt.Errorf("archive failed: %w", err)
	}

	r.collector.ArchiveSegments.Inc()
	r.collector.ArchiveRecordsRolled.Add(float64(len(r.records)))
	r.logger.Info().Str("segment", path).Int("records", len(r.records)).Msg("Record log rotated")
	r.records = nil
	return nil
}

func (r *Recorder) writeSnapshot(ctx context.Context) error {
	start := time.Now()
	err := reliability.Retry(ctx, r.retry, func(ctx context.Context) error {
		return r.sink.Write(ctx, r.records)
	})
	r.collector.SinkWriteDuration.WithLabelValues(r.sink.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		r.collector.SinkWriteErrors.WithLabelValues(r.sink.Name()).Inc()
		return fmt.Errorf("snapshot write failed: %w", err)
	}

	r.collector.SinkWrites.WithLabelValues(r.sink.Name()).Inc()
	return nil
}

// Snapshot returns a copy of the current record log
func (r *Recorder) Snapshot() []types.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Record, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Clone()
	}
	return out
}

// Len returns the number of records currently held
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const namespace = "voltlog"

// Collector provides a central place for all application metrics
type Collector struct {
	// Input metrics
	InputLinesReceived *prometheus.CounterVec
	InputBytesReceived *prometheus.CounterVec
	InputLinesDropped  *prometheus.CounterVec
	InputReadErrors    *prometheus.CounterVec

	// Parser metrics
	ParserRecordsAccepted prometheus.Counter
	ParserLinesDiscarded  *prometheus.CounterVec
	ParserDuration        prometheus.Histogram

	// Record log metrics
	LogRecords prometheus.Gauge

	// Sink metrics
	SinkWrites        *prometheus.CounterVec
	SinkWriteErrors   *prometheus.CounterVec
	SinkWriteDuration *prometheus.HistogramVec

	// Reject log metrics
	RejectEntriesWritten prometheus.Counter
	RejectEntriesDropped prometheus.Counter

	// Archive metrics
	ArchiveSegments      prometheus.Counter
	ArchiveRecordsRolled prometheus.Counter

	// Forwarder metrics
	ForwardRecordsSent   prometheus.Counter
	ForwardRecordsFailed prometheus.Counter

	// System metrics
	SystemGoroutines prometheus.Gauge
	SystemMemAlloc   prometheus.Gauge
	SystemMemSys     prometheus.Gauge

	// Health metrics
	HealthStatus *prometheus.GaugeVec

	registry *prometheus.Registry
	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		stopCh:   make(chan struct{}),
	}

	c.initInputMetrics()
	c.initParserMetrics()
	c.initSinkMetrics()
	c.initRejectMetrics()
	c.initArchiveMetrics()
	c.initForwardMetrics()
	c.initSystemMetrics()
	c.initHealthMetrics()

	return c
}

func (c *Collector) initInputMetrics() {
	c.InputLinesReceived = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "lines_received_total",
			Help:      "Total number of lines received by input source",
		},
		[]string{"input_name", "input_type"},
	)

	c.InputBytesReceived = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "bytes_received_total",
			Help:      "Total bytes received by input source",
		},
		[]string{"input_name", "input_type"},
	)

	c.InputLinesDropped = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "lines_dropped_total",
			Help:      "Total number of lines dropped due to backpressure",
		},
		[]string{"input_name", "input_type"},
	)

	c.InputReadErrors = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "read_errors_total",
			Help:      "Total number of read errors by input source",
		},
		[]string{"input_name", "input_type"},
	)
}

func (c *Collector) initParserMetrics() {
	c.ParserRecordsAccepted = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "records_accepted_total",
			Help:      "Total number of lines parsed into accepted records",
		},
	)

	c.ParserLinesDiscarded = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "lines_discarded_total",
			Help:      "Total number of lines discarded by the parser",
		},
		[]string{"reason"},
	)

	c.ParserDuration = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "duration_seconds",
			Help:      "Time taken to parse a line",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15),
		},
	)
}

func (c *Collector) initSinkMetrics() {
	c.LogRecords = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "records",
			Help:      "Current number of records held in memory",
		},
	)

	c.SinkWrites = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "writes_total",
			Help:      "Total number of snapshot writes by sink",
		},
		[]string{"sink"},
	)

	c.SinkWriteErrors = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "write_errors_total",
			Help:      "Total number of failed snapshot writes by sink",
		},
		[]string{"sink"},
	)

	c.SinkWriteDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "write_duration_seconds",
			Help:      "Time taken to write a snapshot",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"sink"},
	)
}

func (c *Collector) initRejectMetrics() {
	c.RejectEntriesWritten = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reject",
			Name:      "entries_written_total",
			Help:      "Total number of discarded lines recorded in the reject log",
		},
	)

	c.RejectEntriesDropped = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reject",
			Name:      "entries_dropped_total",
			Help:      "Total number of reject entries dropped because the log was full",
		},
	)
}

func (c *Collector) initArchiveMetrics() {
	c.ArchiveSegments = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "segments_total",
			Help:      "Total number of archive segments written",
		},
	)

	c.ArchiveRecordsRolled = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "records_rolled_total",
			Help:      "Total number of records rotated out of memory into archives",
		},
	)
}

func (c *Collector) initForwardMetrics() {
	c.ForwardRecordsSent = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "records_sent_total",
			Help:      "Total number of records forwarded to Kafka",
		},
	)

	c.ForwardRecordsFailed = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "records_failed_total",
			Help:      "Total number of records that failed to forward",
		},
	)
}

func (c *Collector) initSystemMetrics() {
	c.SystemGoroutines = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "goroutines_total",
			Help:      "Current number of goroutines",
		},
	)

	c.SystemMemAlloc = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_allocated_bytes",
			Help:      "Bytes of allocated heap objects",
		},
	)

	c.SystemMemSys = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_system_bytes",
			Help:      "Total bytes of memory obtained from the OS",
		},
	)
}

func (c *Collector) initHealthMetrics() {
	c.HealthStatus = promauto.With(c.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "status",
			Help:      "Health status of components (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)
}

// Start begins collecting system metrics periodically
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}

	c.started = true

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collectSystemMetrics()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}

	c.started = false
	close(c.stopCh)
}

// collectSystemMetrics gathers runtime metrics
func (c *Collector) collectSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.SystemGoroutines.Set(float64(runtime.NumGoroutine()))
	c.SystemMemAlloc.Set(float64(m.Alloc))
	c.SystemMemSys.Set(float64(m.Sys))
}

// Registry returns the Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

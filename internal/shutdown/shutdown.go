package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/voltlog/voltlog/internal/logging"
)

// StopFunc is a function that performs cleanup during shutdown
type StopFunc func(context.Context) error

type stage struct {
	name string
	fn   StopFunc
}

// Manager handles graceful shutdown. Stages run sequentially in registration
// order, so callers register in teardown order: inputs first, sinks last.
type Manager struct {
	logger       *logging.Logger
	timeout      time.Duration
	mu           sync.Mutex
	stages       []stage
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Manager{
		logger:     logger.WithComponent("shutdown"),
		timeout:    timeout,
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Register adds a named shutdown stage
func (m *Manager) Register(name string, fn StopFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage{name: name, fn: fn})
}

// WaitForSignal blocks until a shutdown signal is received, then shuts down
func (m *Manager) WaitForSignal(signals ...os.Signal) {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)

	select {
	case sig := <-sigCh:
		m.logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		m.Shutdown()
	case <-m.shutdownCh:
	}
}

// Shutdown runs all stages once, bounded by the configured timeout
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.shutdownCh)
		m.run()
	})
}

func (m *Manager) run() {
	m.mu.Lock()
	stages := make([]stage, len(m.stages))
	copy(stages, m.stages)
	m.mu.Unlock()

	m.logger.Info().
		Dur("timeout", m.timeout).
		Int("stages", len(stages)).
		Msg("Starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	failures := 0
	for _, st := range stages {
		if ctx.Err() != nil {
			m.logger.Warn().Str("stage", st.name).Msg("Shutdown timed out, skipping remaining stages")
			break
		}

		// Run the stage in a goroutine so a stuck stage cannot hold the
		// whole shutdown past the deadline. An abandoned stage keeps
		// running in the background; the process is exiting anyway.
		errCh := make(chan error, 1)
		go func(fn StopFunc) {
			errCh <- fn(ctx)
		}(st.fn)

		select {
		case err := <-errCh:
			if err != nil {
				failures++
				m.logger.Error().Err(err).Str("stage", st.name).Msg("Shutdown stage failed")
				continue
			}
			m.logger.Debug().Str("stage", st.name).Msg("Shutdown stage completed")
		case <-ctx.Done():
			failures++
			m.logger.Warn().Str("stage", st.name).Msg("Shutdown stage abandoned at deadline")
		}
	}

	if failures > 0 {
		m.logger.Warn().Int("failures", failures).Msg("Graceful shutdown completed with errors")
	} else {
		m.logger.Info().Msg("Graceful shutdown completed")
	}

	close(m.done)
}

// Done returns a channel closed when shutdown has finished
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// ShutdownChannel returns a channel closed when shutdown begins
func (m *Manager) ShutdownChannel() <-chan struct{} {
	return m.shutdownCh
}

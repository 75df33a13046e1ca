package input

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/voltlog/voltlog/internal/logging"
	"github.com/voltlog/voltlog/pkg/types"
)

// TCPConfig holds configuration for the TCP line source, used with
// ser2net-style bridges that put a serial device on the network.
type TCPConfig struct {
	// Address to bind to (e.g. "0.0.0.0:5331")
	Address string `yaml:"address"`

	// RateLimit caps lines per second per client; zero disables limiting
	RateLimit int `yaml:"rate_limit,omitempty"`

	// BufferSize for the line channel
	BufferSize int `yaml:"buffer_size,omitempty"`
}

// TCPInput receives telemetry lines over TCP
type TCPInput struct {
	*BaseInput
	config   TCPConfig
	logger   *logging.Logger
	listener net.Listener
	limiters map[string]*rate.Limiter
	conns    map[net.Conn]struct{}
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewTCPInput creates a new TCP input
func NewTCPInput(name string, config TCPConfig, logger *logging.Logger) *TCPInput {
	if config.BufferSize == 0 {
		config.BufferSize = 1024
	}

	return &TCPInput{
		BaseInput: NewBaseInput(name, "tcp", config.BufferSize),
		config:    config,
		logger:    logger.WithComponent("input-tcp"),
		limiters:  make(map[string]*rate.Limiter),
		conns:     make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and begins accepting connections
func (t *TCPInput) Start() error {
	ln, err := net.Listen("tcp", t.config.Address)
	if err != nil {
		return fmt.Errorf("failed to start TCP listener: %w", err)
	}
	t.listener = ln

	t.logger.Info().Str("address", ln.Addr().String()).Msg("TCP line receiver started")

	t.wg.Add(1)
	go t.acceptLoop()

	return nil
}

// Stop closes the listener and the line channel
func (t *TCPInput) Stop() error {
	t.logger.Info().Msg("Stopping TCP input")

	t.Cancel()
	if t.listener != nil {
		t.listener.Close()
	}

	// Unblock readers stuck on idle connections so wg.Wait cannot hang.
	t.mu.Lock()
	for conn := range t.conns {
		conn.Close()
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.Close()

	return nil
}

// Addr returns the bound listener address, useful when binding port 0
func (t *TCPInput) Addr() string {
	if t.listener == nil {
		return t.config.Address
	}
	return t.listener.Addr().String()
}

// acceptLoop accepts client connections
func (t *TCPInput) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.Context().Done():
				return
			default:
				t.logger.Error().Err(err).Msg("Failed to accept connection")
				continue
			}
		}

		t.wg.Add(1)
		go t.handleConn(conn)
	}
}

// handleConn reads lines from one client
func (t *TCPInput) handleConn(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()

	t.mu.Lock()
	t.conns[conn] = struct{}{}
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.conns, conn)
		t.mu.Unlock()
	}()

	// A connection accepted right as Stop runs may register after the
	// close sweep; the cancelled context catches it here.
	select {
	case <-t.Context().Done():
		return
	default:
	}

	clientAddr := conn.RemoteAddr().String()
	t.logger.Debug().Str("client", clientAddr).Msg("New connection")

	limiter := t.getRateLimiter(clientAddr)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-t.Context().Done():
			return
		default:
		}

		if limiter != nil && !limiter.Allow() {
			t.logger.Warn().Str("client", clientAddr).Msg("Rate limit exceeded")
			continue
		}

		line := sanitize(scanner.Text())
		t.SendLine(&types.RawLine{
			Text:       line,
			Source:     clientAddr,
			ReceivedAt: time.Now(),
		})
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-t.Context().Done():
		default:
			t.CountReadError()
			t.logger.Error().Err(err).Str("client", clientAddr).Msg("Error reading from connection")
		}
	}
}

// getRateLimiter gets or creates a rate limiter for a client
func (t *TCPInput) getRateLimiter(clientAddr string) *rate.Limiter {
	if t.config.RateLimit <= 0 {
		return nil
	}

	t.mu.RLock()
	limiter, exists := t.limiters[clientAddr]
	t.mu.RUnlock()

	if !exists {
		limiter = rate.NewLimiter(rate.Limit(t.config.RateLimit), t.config.RateLimit*2)
		t.mu.Lock()
		t.limiters[clientAddr] = limiter
		t.mu.Unlock()
	}

	return limiter
}

// Health returns the health status
func (t *TCPInput) Health() Health {
	details := map[string]interface{}{
		"address": t.Addr(),
	}

	t.mu.RLock()
	details["known_clients"] = len(t.limiters)
	t.mu.RUnlock()

	if t.listener == nil {
		return Health{
			Status:  HealthStatusUnhealthy,
			Message: "Listener not started",
			Details: details,
		}
	}
	return Health{
		Status:  HealthStatusHealthy,
		Message: "TCP receiver is running",
		Details: details,
	}
}

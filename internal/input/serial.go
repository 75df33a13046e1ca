package input

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/voltlog/voltlog/internal/logging"
	"github.com/voltlog/voltlog/pkg/types"
)

// SerialConfig holds configuration for the serial line source
type SerialConfig struct {
	// Device is the serial device path
	Device string `yaml:"device"`

	// Baud is the line rate. Converter boards ship at 38400 or 9600.
	Baud int `yaml:"baud"`

	// ReadTimeout bounds a single blocking read. A timeout is not an
	// error, it just gives the loop a chance to observe cancellation.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// BufferSize for the line channel
	BufferSize int `yaml:"buffer_size,omitempty"`
}

// DefaultSerialConfig returns the historical deployment defaults
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Device:      "/dev/ttyUSB0",
		Baud:        38400,
		ReadTimeout: 5 * time.Second,
		BufferSize:  256,
	}
}

// SerialInput reads telemetry lines from a serial device
type SerialInput struct {
	*BaseInput
	config     SerialConfig
	logger     *logging.Logger
	port       serial.Port
	wg         sync.WaitGroup
	readErrors atomic.Int64
	linesRead  atomic.Int64
}

// NewSerialInput creates a new serial input
func NewSerialInput(name string, config SerialConfig, logger *logging.Logger) *SerialInput {
	if config.BufferSize == 0 {
		config.BufferSize = 256
	}

	return &SerialInput{
		BaseInput: NewBaseInput(name, "serial", config.BufferSize),
		config:    config,
		logger:    logger.WithComponent("input-serial"),
	}
}

// Start opens the device and begins reading. Failure to open the device
// is fatal to startup; there is no point logging telemetry that cannot
// arrive.
func (s *SerialInput) Start() error {
	mode := &serial.Mode{BaudRate: s.config.Baud}

	port, err := serial.Open(s.config.Device, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial device %s: %w", s.config.Device, err)
	}

	if err := port.SetReadTimeout(s.config.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	s.port = port

	s.logger.Info().
		Str("device", s.config.Device).
		Int("baud", s.config.Baud).
		Dur("read_timeout", s.config.ReadTimeout).
		Msg("Serial device opened")

	s.wg.Add(1)
	go s.readLoop()

	return nil
}

// Stop closes the device and the line channel
func (s *SerialInput) Stop() error {
	s.logger.Info().Msg("Stopping serial input")

	s.Cancel()
	if s.port != nil {
		s.port.Close()
	}
	s.wg.Wait()
	s.Close()

	return nil
}

// readLoop assembles lines from raw reads. The device delivers bytes in
// arbitrary chunks; pending holds the unterminated tail between reads.
func (s *SerialInput) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, 256)
	var pending []byte

	for {
		select {
		case <-s.Context().Done():
			return
		default:
		}

		n, err := s.port.Read(buf)
		if err != nil {
			select {
			case <-s.Context().Done():
				return
			default:
			}
			s.readErrors.Add(1)
			s.CountReadError()
			s.logger.Error().Err(err).Str("device", s.config.Device).Msg("Serial read failed")
			return
		}

		if n == 0 {
			// Read timeout with no data; keep waiting.
			continue
		}

		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			raw := string(pending[:i])
			pending = pending[i+1:]
			s.emit(raw)
		}
	}
}

// emit sanitizes and forwards one terminated line
func (s *SerialInput) emit(raw string) {
	line := sanitize(raw)
	s.linesRead.Add(1)
	s.logger.Debug().Str("line", line).Msg("Raw line received")

	s.SendLine(&types.RawLine{
		Text:       line,
		Source:     s.config.Device,
		ReceivedAt: time.Now(),
	})
}

// Health returns the health status
func (s *SerialInput) Health() Health {
	details := map[string]interface{}{
		"device":      s.config.Device,
		"baud":        s.config.Baud,
		"lines_read":  s.linesRead.Load(),
		"read_errors": s.readErrors.Load(),
	}

	if s.port == nil {
		return Health{
			Status:  HealthStatusUnhealthy,
			Message: "Serial device not open",
			Details: details,
		}
	}
	if s.readErrors.Load() > 0 {
		return Health{
			Status:  HealthStatusDegraded,
			Message: "Serial reads have failed",
			Details: details,
		}
	}
	return Health{
		Status:  HealthStatusHealthy,
		Message: "Serial device is open",
		Details: details,
	}
}

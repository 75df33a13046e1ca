package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voltlog/voltlog/internal/archive"
	"github.com/voltlog/voltlog/internal/forward"
	"github.com/voltlog/voltlog/internal/input"
	"github.com/voltlog/voltlog/internal/parser"
	"github.com/voltlog/voltlog/internal/recorder"
	"github.com/voltlog/voltlog/internal/reject"
	"github.com/voltlog/voltlog/internal/reliability"
	"github.com/voltlog/voltlog/internal/server"
	"github.com/voltlog/voltlog/internal/sink"
)

// Default values
const (
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultShutdownTimeout = 30 * time.Second
)

// Config represents the main configuration
type Config struct {
	Logging  LoggingConfig           `yaml:"logging"`
	Inputs   InputsConfig            `yaml:"inputs"`
	Parser   *parser.Config          `yaml:"parser,omitempty"`
	Recorder recorder.Config         `yaml:"recorder"`
	Sink     SinkConfig              `yaml:"sink"`
	Reject   *reject.Config          `yaml:"reject,omitempty"`
	Archive  *archive.Config         `yaml:"archive,omitempty"`
	Forward  *forward.Config         `yaml:"forward,omitempty"`
	Server   server.Config           `yaml:"server"`
	Retry    reliability.RetryConfig `yaml:"retry"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// InputsConfig defines line sources. Each configured source runs
// concurrently and feeds the same record log.
type InputsConfig struct {
	Serial []SerialInputConfig `yaml:"serial,omitempty"`
	TCP    []TCPInputConfig    `yaml:"tcp,omitempty"`
	Replay []ReplayInputConfig `yaml:"replay,omitempty"`
}

// SerialInputConfig defines a serial input
type SerialInputConfig struct {
	Name               string `yaml:"name"`
	input.SerialConfig `yaml:",inline"`
}

// TCPInputConfig defines a TCP input
type TCPInputConfig struct {
	Name            string `yaml:"name"`
	input.TCPConfig `yaml:",inline"`
}

// ReplayInputConfig defines a capture-file replay input
type ReplayInputConfig struct {
	Name               string `yaml:"name"`
	input.ReplayConfig `yaml:",inline"`
}

// SinkConfig defines where record-log snapshots go. The file sink is the
// primary destination; the others are optional additions.
type SinkConfig struct {
	File   sink.FileConfig `yaml:"file"`
	NDJSON string          `yaml:"ndjson,omitempty"` // path, empty disables
	Stdout bool            `yaml:"stdout,omitempty"`
}

// Load loads configuration from a YAML file with environment variable expansion
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration
func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Parser == nil {
		c.Parser = parser.DefaultConfig()
	}
	if c.Parser.Mode == "" {
		c.Parser.Mode = parser.ModeStrict
	}
	if c.Sink.File.Path == "" {
		c.Sink.File = sink.DefaultFileConfig()
	}
	if c.Server.Address == "" {
		c.Server = server.DefaultConfig()
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry = reliability.DefaultRetryConfig()
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Archive != nil && c.Recorder.MaxRecords == 0 {
		c.Recorder.MaxRecords = c.Archive.MaxRecords
	}

	for i := range c.Inputs.Serial {
		def := input.DefaultSerialConfig()
		if c.Inputs.Serial[i].Device == "" {
			c.Inputs.Serial[i].Device = def.Device
		}
		if c.Inputs.Serial[i].Baud == 0 {
			c.Inputs.Serial[i].Baud = def.Baud
		}
		if c.Inputs.Serial[i].ReadTimeout == 0 {
			c.Inputs.Serial[i].ReadTimeout = def.ReadTimeout
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	totalInputs := len(c.Inputs.Serial) + len(c.Inputs.TCP) + len(c.Inputs.Replay)
	if totalInputs == 0 {
		return fmt.Errorf("at least one input must be configured")
	}

	for i, in := range c.Inputs.Serial {
		if in.Name == "" {
			return fmt.Errorf("serial input %d has no name configured", i)
		}
	}
	for i, in := range c.Inputs.TCP {
		if in.Name == "" {
			return fmt.Errorf("tcp input %d has no name configured", i)
		}
		if in.Address == "" {
			return fmt.Errorf("tcp input %d has no address configured", i)
		}
	}
	for i, in := range c.Inputs.Replay {
		if in.Name == "" {
			return fmt.Errorf("replay input %d has no name configured", i)
		}
		if in.Path == "" {
			return fmt.Errorf("replay input %d has no path configured", i)
		}
	}

	switch c.Parser.Mode {
	case parser.ModeStrict, parser.ModePermissive, parser.ModeRaw:
	default:
		return fmt.Errorf("invalid parser mode: %s", c.Parser.Mode)
	}

	if c.Sink.File.Path == "" {
		return fmt.Errorf("sink file path is required")
	}

	if c.Forward != nil && c.Forward.Enabled {
		if len(c.Forward.Brokers) == 0 {
			return fmt.Errorf("forwarding is enabled but no brokers are configured")
		}
		if c.Forward.Topic == "" {
			return fmt.Errorf("forwarding is enabled but no topic is configured")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// LoadOrDefault loads configuration from file. A missing file falls back to
// the default deployment; a file that exists but fails to parse or validate
// is an error, never silently replaced.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the historical single-device deployment: one serial
// input and a pretty-printed JSON array rewritten on every accepted record.
func DefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Inputs: InputsConfig{
			Serial: []SerialInputConfig{
				{Name: "atverter", SerialConfig: input.DefaultSerialConfig()},
			},
		},
		Parser: parser.DefaultConfig(),
		Sink: SinkConfig{
			File: sink.DefaultFileConfig(),
		},
		Server:          server.DefaultConfig(),
		Retry:           reliability.DefaultRetryConfig(),
		ShutdownTimeout: DefaultShutdownTimeout,
	}
	return cfg
}

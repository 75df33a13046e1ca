package parser

import (
	"fmt"
	"time"

	"github.com/voltlog/voltlog/pkg/types"
)

// Mode selects how much of a raw line is turned into record fields.
type Mode string

const (
	// ModeStrict extracts fields and emits a record only when every
	// required field is present; incomplete lines are discarded.
	ModeStrict Mode = "strict"

	// ModePermissive extracts fields and always emits a record with
	// whatever was found.
	ModePermissive Mode = "permissive"

	// ModeRaw skips field extraction and stores the whole line under a
	// "data" field.
	ModeRaw Mode = "raw"
)

// Config holds line parser configuration
type Config struct {
	Mode           Mode              `yaml:"mode"`
	RequiredFields []string          `yaml:"required_fields,omitempty"`
	Aliases        map[string]string `yaml:"aliases,omitempty"`
}

// DefaultRequiredFields returns the converter telemetry fields a strict
// record must carry.
func DefaultRequiredFields() []string {
	return []string{
		"LowSideVoltage",
		"LowSideCurrent",
		"HighSideVoltage",
		"HighSideCurrent",
		"DutyCycle",
	}
}

// DefaultAliases returns the default key alias table. Some firmware builds
// label the duty cycle with a space in the key.
func DefaultAliases() map[string]string {
	return map[string]string{
		"Duty Cycle": "DutyCycle",
	}
}

// DefaultConfig returns a strict-mode parser configuration
func DefaultConfig() *Config {
	return &Config{
		Mode:           ModeStrict,
		RequiredFields: DefaultRequiredFields(),
		Aliases:        DefaultAliases(),
	}
}

// LineParser turns raw telemetry lines into records
type LineParser struct {
	mode     Mode
	required []string
	aliases  map[string]string
	now      func() time.Time
}

// New creates a line parser from the configuration
func New(cfg *Config) (*LineParser, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	mode := cfg.Mode
	if mode == "" {
		mode = ModeStrict
	}

	switch mode {
	case ModeStrict, ModePermissive, ModeRaw:
	default:
		return nil, fmt.Errorf("unknown parser mode: %s", mode)
	}

	required := cfg.RequiredFields
	if required == nil {
		required = DefaultRequiredFields()
	}

	aliases := cfg.Aliases
	if aliases == nil {
		aliases = DefaultAliases()
	}

	return &LineParser{
		mode:     mode,
		required: required,
		aliases:  aliases,
		now:      time.Now,
	}, nil
}

// Mode returns the configured parser mode
func (p *LineParser) Mode() Mode {
	return p.mode
}

// SetNow overrides the clock used to stamp records. Intended for tests
// that need deterministic timestamps.
func (p *LineParser) SetNow(now func() time.Time) {
	p.now = now
}

// Parse produces zero or one record from a raw line. A nil record means
// the line was skipped (empty input) or discarded (strict mode with
// required fields missing). Parse never fails: malformed parts are
// dropped per part.
func (p *LineParser) Parse(line string) types.Record {
	if line == "" {
		return nil
	}

	record := types.NewRecord(p.now())

	switch p.mode {
	case ModeRaw:
		record[types.FieldData] = line
		return record

	case ModePermissive:
		for key, value := range p.Fields(line) {
			record[key] = value
		}
		return record

	default: // strict
		fields := p.Fields(line)
		for _, key := range p.required {
			if value, ok := fields[key]; ok {
				record[key] = value
			}
		}
		for _, key := range p.required {
			if _, ok := record[key]; !ok {
				return nil
			}
		}
		return record
	}
}

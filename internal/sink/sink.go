package sink

import (
	"context"

	"github.com/voltlog/voltlog/pkg/types"
)

// Sink persists the record log. Write receives the FULL in-memory record
// sequence after every accepted record; a sink decides whether to rewrite
// wholesale (file) or append the delta (ndjson, stdout).
type Sink interface {
	// Name returns the sink name
	Name() string

	// Write persists the current record log snapshot
	Write(ctx context.Context, records []types.Record) error

	// Close releases sink resources
	Close() error
}

// Type identifies a sink implementation in configuration.
type Type string

const (
	TypeFile   Type = "file"
	TypeNDJSON Type = "ndjson"
	TypeStdout Type = "stdout"
)

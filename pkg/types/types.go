package types

import "time"

// Record field names with fixed meaning across parser modes.
const (
	FieldTimestamp = "timestamp"
	FieldData      = "data"
)

// RecordTimeFormat is the timestamp layout used in records: local wall-clock
// time, sortable, no zone offset, microsecond precision.
const RecordTimeFormat = "2006-01-02T15:04:05.000000"

// Record is one logged observation: a flat field-name to string-value
// mapping that always carries a "timestamp" field.
type Record map[string]string

// NewRecord creates a record stamped with the given time.
func NewRecord(ts time.Time) Record {
	return Record{FieldTimestamp: ts.Format(RecordTimeFormat)}
}

// Timestamp returns the record's timestamp field, or the empty string for a
// hand-built record without one.
func (r Record) Timestamp() string {
	return r[FieldTimestamp]
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RawLine is one delimiter-terminated chunk of decoded text received from a
// line source. Transient; discarded after parsing.
type RawLine struct {
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

// ParserStats tracks parser counters.
type ParserStats struct {
	Parsed    int64 `json:"parsed"`
	Discarded int64 `json:"discarded"`
	Skipped   int64 `json:"skipped"`
}

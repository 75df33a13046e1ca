package parser

import "strings"

// Fields extracts key/value pairs from a raw line. The line is split on
// tabs; each part that carries a ':' or '=' delimiter is normalized
// ('=' becomes ':') and split on the FIRST ':' only, so values may contain
// further colons (e.g. "Time:12:30:00"). Both sides are trimmed and the
// alias table is applied to keys. Parts without a delimiter are skipped;
// empty keys or values are accepted. Duplicate keys are last-write-wins in
// order of appearance.
func (p *LineParser) Fields(line string) map[string]string {
	fields := make(map[string]string)

	for _, part := range strings.Split(line, "\t") {
		if !strings.ContainsAny(part, ":=") {
			continue
		}

		part = strings.ReplaceAll(part, "=", ":")
		key, value, _ := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if alias, ok := p.aliases[key]; ok {
			key = alias
		}

		fields[key] = value
	}

	return fields
}

package wire

import (
	"encoding/json"
	"maps"
	"strings"
)

// Payload is what a publisher's owner hands over for relaying. It is either
// a raw value, which is wrapped under the "signal" key, or a tagged mapping
// whose fields become envelope fields.
type Payload struct {
	value  any
	fields map[string]any
	tagged bool
}

// Raw wraps an arbitrary JSON-encodable value.
func Raw(value any) Payload {
	return Payload{value: value}
}

// Tagged wraps a mapping. The map is copied.
func Tagged(fields map[string]any) Payload {
	return Payload{fields: maps.Clone(fields), tagged: true}
}

// FromValue picks the variant from the dynamic type of value.
func FromValue(value any) Payload {
	if m, ok := value.(map[string]any); ok {
		return Tagged(m)
	}
	return Raw(value)
}

// ParseLine interprets one line of text the way the publish command does:
// JSON objects become Tagged, other JSON values Raw, anything else a raw string.
func ParseLine(line string) Payload {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Raw(line)
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return Raw(line)
	}
	return FromValue(decoded)
}

// IsTagged reports whether the payload is a mapping.
func (p Payload) IsTagged() bool {
	return p.tagged
}

// Value returns the payload as a plain Go value.
func (p Payload) Value() any {
	if p.tagged {
		return maps.Clone(p.fields)
	}
	return p.value
}

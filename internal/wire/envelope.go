package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

const (
	keySignal  = "signal"
	keyPID     = "pid"
	keyExeName = "exename"
)

// Envelope is the origin-tagged wrapper written for every relayed signal.
type Envelope struct {
	Signal  any
	PID     int
	ExeName string
	// Extra holds the remaining fields of a tagged payload that carried its
	// own signal key.
	Extra map[string]any
}

// NewEnvelope normalizes payload into an envelope. A tagged payload that
// already contains a signal key keeps its fields and contributes its signal
// field; every other payload is placed whole under signal. The publisher's
// pid and service name always win over same-named payload fields.
func NewEnvelope(payload Payload, pid int, exeName string) Envelope {
	env := Envelope{PID: pid, ExeName: exeName}
	if !payload.tagged {
		env.Signal = payload.value
		return env
	}
	signal, ok := payload.fields[keySignal]
	if !ok {
		env.Signal = maps.Clone(payload.fields)
		return env
	}
	env.Signal = signal
	for k, v := range payload.fields {
		switch k {
		case keySignal, keyPID, keyExeName:
			continue
		}
		if env.Extra == nil {
			env.Extra = make(map[string]any)
		}
		env.Extra[k] = v
	}
	return env
}

// ExtraKeys returns the extra field names in sorted order.
func (e Envelope) ExtraKeys() []string {
	return slices.Sorted(maps.Keys(e.Extra))
}

// MarshalJSON writes signal, pid and exename first, then extra fields in key order.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}
	if err := write(keySignal, e.Signal); err != nil {
		return nil, err
	}
	if err := write(keyPID, e.PID); err != nil {
		return nil, err
	}
	if err := write(keyExeName, e.ExeName); err != nil {
		return nil, err
	}
	for _, k := range e.ExtraKeys() {
		if err := write(k, e.Extra[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts any object; unknown keys land in Extra.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*e = Envelope{}
	for k, raw := range fields {
		var err error
		switch k {
		case keySignal:
			err = json.Unmarshal(raw, &e.Signal)
		case keyPID:
			err = json.Unmarshal(raw, &e.PID)
		case keyExeName:
			err = json.Unmarshal(raw, &e.ExeName)
		default:
			var v any
			if err = json.Unmarshal(raw, &v); err == nil {
				if e.Extra == nil {
					e.Extra = make(map[string]any)
				}
				e.Extra[k] = v
			}
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
	}
	return nil
}

// Encode returns the textual form sent over the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses bytes produced by Encode.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// SignalText renders the signal for human-facing output: strings verbatim,
// everything else as compact JSON.
func (e Envelope) SignalText() string {
	if s, ok := e.Signal.(string); ok {
		return s
	}
	data, err := json.Marshal(e.Signal)
	if err != nil {
		return fmt.Sprint(e.Signal)
	}
	return string(data)
}

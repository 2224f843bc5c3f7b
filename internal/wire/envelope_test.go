package wire

import (
	"reflect"
	"testing"
)

func TestNewEnvelopeWrapsRawValue(t *testing.T) {
	env := NewEnvelope(Raw("ready"), 100, "svc")
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"signal":"ready","pid":100,"exename":"svc"}`
	if string(data) != want {
		t.Fatalf("encoded = %s, want %s", data, want)
	}
}

func TestNewEnvelopeWrapsMappingWithoutSignal(t *testing.T) {
	env := NewEnvelope(Tagged(map[string]any{"provider": "alice"}), 7, "svc")
	want := map[string]any{"provider": "alice"}
	if !reflect.DeepEqual(env.Signal, want) {
		t.Fatalf("signal = %#v, want %#v", env.Signal, want)
	}
	if env.Extra != nil {
		t.Fatalf("expected no extra fields, got %v", env.Extra)
	}
}

// Deliberate deviation from the literal historical behaviour. The earlier
// sender meant to pass through mappings that already held a signal key, but
// its containment check could never match, so every mapping was nested under
// a second signal key. Here such a mapping is the envelope itself, so filter
// decisions arrive as {"signal":"reject","provider":...} and consumers read
// the verdict at the top level.
func TestNewEnvelopeKeepsMappingThatCarriesSignal(t *testing.T) {
	payload := Tagged(map[string]any{
		"signal":   "reject",
		"provider": "mallory@0xabc",
		"pid":      1,
		"exename":  "spoofed",
	})
	env := NewEnvelope(payload, 42, "svc")
	if env.Signal != "reject" {
		t.Fatalf("signal = %#v, want reject", env.Signal)
	}
	if env.PID != 42 || env.ExeName != "svc" {
		t.Fatalf("origin fields overridden by payload: %+v", env)
	}
	if !reflect.DeepEqual(env.Extra, map[string]any{"provider": "mallory@0xabc"}) {
		t.Fatalf("unexpected extra fields %v", env.Extra)
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"signal":"reject","pid":42,"exename":"svc","provider":"mallory@0xabc"}`
	if string(data) != want {
		t.Fatalf("encoded = %s, want %s", data, want)
	}
}

func TestDecodeEnvelopeRoundTrip(t *testing.T) {
	data := []byte(`{"signal":{"n":1},"pid":9,"exename":"svc","reason":"blacklist"}`)
	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.PID != 9 || env.ExeName != "svc" {
		t.Fatalf("unexpected origin %+v", env)
	}
	if env.SignalText() != `{"n":1}` {
		t.Fatalf("unexpected signal text %q", env.SignalText())
	}
	if env.Extra["reason"] != "blacklist" {
		t.Fatalf("unexpected extra %v", env.Extra)
	}
}

func TestDecodeEnvelopeRejectsNonObject(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`"ready"`)); err == nil {
		t.Fatal("expected error for non-object envelope")
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line   string
		tagged bool
		value  any
	}{
		{"ready", false, "ready"},
		{`"quoted"`, false, "quoted"},
		{"42", false, float64(42)},
		{`{"signal":"go"}`, true, map[string]any{"signal": "go"}},
		{"{not json", false, "{not json"},
	}
	for _, tt := range tests {
		p := ParseLine(tt.line)
		if p.IsTagged() != tt.tagged {
			t.Errorf("ParseLine(%q).IsTagged() = %v, want %v", tt.line, p.IsTagged(), tt.tagged)
		}
		if !reflect.DeepEqual(p.Value(), tt.value) {
			t.Errorf("ParseLine(%q).Value() = %#v, want %#v", tt.line, p.Value(), tt.value)
		}
	}
}

func TestTaggedCopiesInput(t *testing.T) {
	fields := map[string]any{"signal": "a"}
	p := Tagged(fields)
	fields["signal"] = "b"
	if NewEnvelope(p, 1, "svc").Signal != "a" {
		t.Fatal("expected Tagged to copy its input map")
	}
}

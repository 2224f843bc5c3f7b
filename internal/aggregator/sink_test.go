package aggregator_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"filterms/internal/aggregator"
	"filterms/internal/wire"
)

func encode(t *testing.T, p wire.Payload) []byte {
	t.Helper()
	frame, err := wire.NewEnvelope(p, 7, "svc").Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return frame
}

func TestWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := aggregator.NewWriterSink(&buf)
	ctx := context.Background()
	for _, f := range []string{`{"a":1}`, `{"b":2}`} {
		if err := sink.Deliver(ctx, []byte(f)); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
	}
	if buf.String() != "{\"a\":1}\n{\"b\":2}\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestPrettySinkFormatsEnvelope(t *testing.T) {
	var buf bytes.Buffer
	sink := aggregator.NewPrettySink(&buf, false)
	frame := encode(t, wire.Tagged(map[string]any{"signal": "reject", "provider": "mallory"}))
	if err := sink.Deliver(context.Background(), frame); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got := buf.String(); got != "[7] svc: reject provider=mallory\n" {
		t.Fatalf("unexpected output %q", got)
	}

	buf.Reset()
	if err := sink.Deliver(context.Background(), []byte("plain")); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if buf.String() != "plain\n" {
		t.Fatalf("expected verbatim fallback, got %q", buf.String())
	}
}

func TestMultiSinkDeliversToAll(t *testing.T) {
	failing := aggregator.SinkFunc(func(context.Context, []byte) error { return errors.New("boom") })
	var buf bytes.Buffer
	multi := aggregator.MultiSink{failing, aggregator.NewWriterSink(&buf)}
	err := multi.Deliver(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("expected joined error")
	}
	if buf.String() != "x\n" {
		t.Fatal("later sinks must still receive the frame")
	}
}

func TestChanSinkNext(t *testing.T) {
	sink := aggregator.NewChanSink(1)
	frame := encode(t, wire.Raw("ready"))
	if err := sink.Deliver(context.Background(), frame); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	frame[0] = 'X'

	env, raw, err := sink.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if env.Signal != "ready" || raw[0] != '{' {
		t.Fatalf("expected an independent copy of the frame, got %s", raw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := sink.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestChanSinkDeliverHonoursContext(t *testing.T) {
	sink := aggregator.NewChanSink(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Deliver(ctx, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

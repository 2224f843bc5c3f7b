package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jedib0t/go-pretty/v6/text"

	"filterms/internal/wire"
)

// Sink is the aggregator's output handle. Deliver receives each frame
// verbatim, in receive order per publisher.
type Sink interface {
	Deliver(ctx context.Context, frame []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, frame []byte) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, frame []byte) error {
	return f(ctx, frame)
}

// WriterSink writes each frame as one line.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a sink emitting newline-delimited JSON to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Deliver writes frame followed by a newline.
func (s *WriterSink) Deliver(_ context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := make([]byte, 0, len(frame)+1)
	line = append(line, frame...)
	line = append(line, '\n')
	_, err := s.w.Write(line)
	return err
}

// PrettySink renders envelopes for a terminal: "[pid] exename: signal"
// followed by any extra fields.
type PrettySink struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewPrettySink returns a human-readable sink. color enables ANSI styling.
func NewPrettySink(w io.Writer, color bool) *PrettySink {
	return &PrettySink{w: w, color: color}
}

// Deliver decodes frame and writes one formatted line. Frames that are not
// envelopes are written verbatim.
func (s *PrettySink) Deliver(_ context.Context, frame []byte) error {
	env, err := wire.DecodeEnvelope(frame)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		_, werr := fmt.Fprintf(s.w, "%s\n", frame)
		return werr
	}
	origin := fmt.Sprintf("[%d] %s:", env.PID, env.ExeName)
	if s.color {
		origin = text.Colors{text.FgCyan, text.Bold}.Sprint(origin)
	}
	line := origin + " " + env.SignalText()
	for _, key := range env.ExtraKeys() {
		line += fmt.Sprintf(" %s=%v", key, env.Extra[key])
	}
	_, err = fmt.Fprintln(s.w, line)
	return err
}

// MultiSink delivers each frame to every sink in order. All sinks see the
// frame even when an earlier one fails.
type MultiSink []Sink

// Deliver fans frame out and joins the errors.
func (m MultiSink) Deliver(ctx context.Context, frame []byte) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Deliver(ctx, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChanSink hands frames to an in-process consumer. Deliver blocks while
// the buffer is full, which stalls the aggregator loop; size the buffer for
// the expected burst.
type ChanSink struct {
	frames chan []byte
}

// NewChanSink returns a sink buffering up to size frames.
func NewChanSink(size int) *ChanSink {
	if size < 0 {
		size = 0
	}
	return &ChanSink{frames: make(chan []byte, size)}
}

// Deliver queues a copy of frame.
func (s *ChanSink) Deliver(ctx context.Context, frame []byte) error {
	select {
	case s.frames <- append([]byte(nil), frame...):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next blocks until the next signal arrives and decodes it.
func (s *ChanSink) Next(ctx context.Context) (wire.Envelope, []byte, error) {
	select {
	case frame := <-s.frames:
		env, err := wire.DecodeEnvelope(frame)
		return env, frame, err
	case <-ctx.Done():
		return wire.Envelope{}, nil, ctx.Err()
	}
}

package aggregator

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"filterms/internal/rendezvous"
	"filterms/internal/wire"
)

// State is the lifecycle position of a tracked peer.
type State string

const (
	StateConnected State = "connected"
	StateBad       State = "bad"
)

const frameQueueSize = 64

// connection is one claimed and connected publisher.
type connection struct {
	record rendezvous.PeerRecord
	conn   net.Conn
	frames chan []byte
	// done is closed by the reader after its last frame is queued; err is
	// valid afterwards.
	done chan struct{}
	err  error
	bad  bool
	// expiring is set once the endpoint vanished and a read deadline bounds
	// how long the reader keeps collecting buffered frames.
	expiring bool
}

func newConnection(rec rendezvous.PeerRecord, conn net.Conn) *connection {
	c := &connection{
		record: rec,
		conn:   conn,
		frames: make(chan []byte, frameQueueSize),
		done:   make(chan struct{}),
	}
	go c.read()
	return c
}

func (c *connection) read() {
	defer close(c.done)
	for {
		frame, err := wire.ReadFrame(c.conn)
		if err != nil {
			c.err = err
			return
		}
		c.frames <- frame
	}
}

func (c *connection) ended() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// drain forwards up to limit queued frames. The connection turns bad once
// its reader has ended and every frame it queued has been forwarded.
func (c *connection) drain(limit int, forward func([]byte) error) error {
	if c.bad {
		return nil
	}
	ended := c.ended()
	for n := 0; n < limit; n++ {
		select {
		case frame := <-c.frames:
			if err := forward(frame); err != nil {
				return err
			}
		default:
			if ended {
				c.bad = true
			}
			return nil
		}
	}
	return nil
}

// expire lets the reader collect frames already in flight for grace, then
// ends it. The connection turns bad through drain as usual.
func (c *connection) expire(grace time.Duration) {
	if c.expiring {
		return
	}
	c.expiring = true
	_ = c.conn.SetReadDeadline(time.Now().Add(grace))
}

func (c *connection) state() State {
	if c.bad {
		return StateBad
	}
	return StateConnected
}

// close stops the reader. Frames still queued are discarded.
func (c *connection) close() {
	_ = c.conn.Close()
	for {
		select {
		case <-c.frames:
		case <-c.done:
			return
		}
	}
}

// endReason classifies the reader's terminal error for logging.
func endReason(err error) string {
	switch {
	case err == nil:
		return "closed"
	case errors.Is(err, io.EOF):
		return "end of stream"
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return "connection reset"
	case errors.Is(err, net.ErrClosed):
		return "closed locally"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "endpoint vanished"
	default:
		return err.Error()
	}
}

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize limits a single encoded envelope to 1MB.
const MaxFrameSize = 1 << 20

const frameHeaderSize = 4

// ErrFrameTooLarge is returned when a frame header announces more than MaxFrameSize bytes.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// WriteFrame writes payload to w as one frame.
// Wire format: [length:4 BE][payload]. Header and payload go out in a single
// Write so a reader never observes a header without its body from a live peer.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("write frame: %w (%d bytes)", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:frameHeaderSize], uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r. A clean end of stream before any header
// byte is reported as io.EOF; a stream cut mid-frame as io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("read frame: %w (%d bytes)", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

package main

import (
	"bufio"
	"context"
	"io"

	"filterms/internal/wire"
)

// readLines streams r line by line from its own goroutine, so callers can
// stop on ctx while a terminal read is still blocked. The error channel
// receives exactly one value once the line channel is closed: the scanner
// error, ctx's error, or nil at EOF.
func readLines(ctx context.Context, r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			errc <- err
			close(lines)
		}()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), wire.MaxFrameSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				err = ctx.Err()
				return
			}
		}
		err = scanner.Err()
	}()
	return lines, errc
}

// forEachLine calls fn for every line of r until EOF, fn fails, or ctx is
// cancelled.
func forEachLine(ctx context.Context, r io.Reader, fn func(string) error) error {
	if r == nil {
		return nil
	}
	lines, errc := readLines(ctx, r)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			if err := fn(line); err != nil {
				return err
			}
		}
	}
}

package publisher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"filterms/internal/logging"
	"filterms/internal/rendezvous"
	"filterms/internal/wire"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher endpoint closed")

const defaultBuffer = 64

// Options configures an Endpoint.
type Options struct {
	// Service names the rendezvous namespace and is reported as exename.
	Service string
	// Root overrides the rendezvous root; empty uses the temp-directory rule.
	Root string
	// PID overrides the reported identity; zero uses the process id.
	PID int
	// Buffer is the number of signals queued while no consumer is attached.
	Buffer int
	Logger *slog.Logger
}

// Endpoint is one publisher's listening socket plus its rendezvous entry.
type Endpoint struct {
	service    string
	pid        int
	dir        string
	descriptor string
	address    string

	listener net.Listener
	liveness *flock.Flock
	claim    rendezvous.Claim
	logger   *slog.Logger

	outbox chan wire.Payload
	// pending counts signals published but not yet written or dropped.
	pending atomic.Int64
	closed  chan struct{}
	once    sync.Once

	mu   sync.Mutex
	conn net.Conn
}

// New creates the rendezvous subdirectory, binds the endpoint and writes
// the connection descriptor. Any failure is returned without retry and
// leaves no artifacts behind; rendezvous.ErrIdentityInUse means another
// live publisher already owns the same service and pid.
func New(opts Options) (*Endpoint, error) {
	service := strings.TrimSpace(opts.Service)
	if service == "" {
		return nil, errors.New("publisher requires a service name")
	}
	pid := opts.PID
	if pid <= 0 {
		pid = os.Getpid()
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	logger := logging.NewComponentLogger(opts.Logger, "publisher").With(
		logging.String(logging.FieldService, service),
		logging.PeerPID(pid),
	)

	root := rendezvous.ResolveRoot(opts.Root, service)
	dir := rendezvous.PeerDir(root, pid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create rendezvous directory: %w", err)
	}

	descriptor := filepath.Join(dir, rendezvous.DescriptorFile)
	liveness, err := rendezvous.HoldLiveness(descriptor)
	if err != nil {
		_ = os.Remove(dir)
		return nil, err
	}

	e := &Endpoint{
		service:    service,
		pid:        pid,
		dir:        dir,
		descriptor: descriptor,
		address:    filepath.Join(dir, rendezvous.EndpointFile),
		liveness:   liveness,
		claim:      rendezvous.LockFileClaim{},
		logger:     logger,
		outbox:     make(chan wire.Payload, buffer),
		closed:     make(chan struct{}),
	}

	// Whatever a dead predecessor with the same pid left behind is stale now
	// that we hold the liveness lock.
	if err := e.claim.Release(dir); err != nil {
		e.abort()
		return nil, fmt.Errorf("clear stale lock file: %w", err)
	}
	if err := os.Remove(e.address); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.abort()
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", e.address)
	if err != nil {
		e.abort()
		return nil, fmt.Errorf("bind endpoint: %w", err)
	}
	e.listener = listener

	if err := rendezvous.WriteDescriptor(descriptor, rendezvous.Descriptor{EndpointAddress: e.address}); err != nil {
		_ = listener.Close()
		e.abort()
		return nil, err
	}

	logger.Debug("publisher endpoint bound",
		logging.Event("publisher_bound"),
		logging.String("endpoint", e.address),
	)
	return e, nil
}

// abort undoes a partially constructed endpoint.
func (e *Endpoint) abort() {
	_ = os.Remove(e.descriptor)
	_ = e.liveness.Unlock()
	_ = os.Remove(e.dir)
}

// PID is the identity reported in every envelope.
func (e *Endpoint) PID() int { return e.pid }

// Dir is the endpoint's rendezvous subdirectory.
func (e *Endpoint) Dir() string { return e.dir }

// DescriptorPath is the path of the connection descriptor.
func (e *Endpoint) DescriptorPath() string { return e.descriptor }

// Address is the socket path recorded in the descriptor.
func (e *Endpoint) Address() string { return e.address }

// Publish queues a signal for the attached consumer. It blocks while the
// buffer is full.
func (e *Endpoint) Publish(ctx context.Context, payload wire.Payload) error {
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}
	e.pending.Add(1)
	select {
	case e.outbox <- payload:
		return nil
	case <-e.closed:
		e.pending.Add(-1)
		return ErrClosed
	case <-ctx.Done():
		e.pending.Add(-1)
		return ctx.Err()
	}
}

// Pending reports how many published signals are still queued or being
// written.
func (e *Endpoint) Pending() int {
	return int(e.pending.Load())
}

// Flush waits until every published signal has been written to a consumer
// or dropped.
func (e *Endpoint) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for e.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.closed:
			return ErrClosed
		case <-ticker.C:
		}
	}
	return nil
}

// Serve accepts consumers one at a time and relays published signals to
// the attached one. It returns once the endpoint is closed; cancelling ctx
// closes it.
func (e *Endpoint) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = e.Close()
	})
	defer stop()

	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if e.isClosed() || errors.Is(err, net.ErrClosed) {
				// Blocks until a Close started by ctx cancellation has
				// finished removing the rendezvous entry.
				_ = e.Close()
				return nil
			}
			logging.WarnWithContext(e.logger, "accept failed", "publisher_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "consumers may fail to attach"),
				logging.String(logging.FieldErrorHint, "check socket permissions in the rendezvous directory"),
			)
			continue
		}
		e.serveConn(ctx, conn)
	}
}

func (e *Endpoint) serveConn(ctx context.Context, conn net.Conn) {
	e.setConn(conn)
	defer func() {
		e.setConn(nil)
		_ = conn.Close()
	}()
	e.logger.Info("consumer attached", logging.Event("consumer_attached"))

	gone := watchPeer(conn)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.closed:
			return
		case <-gone:
			e.consumerLost(nil, nil)
			return
		case payload := <-e.outbox:
			env := wire.NewEnvelope(payload, e.pid, e.service)
			frame, err := env.Encode()
			if err == nil && len(frame) > wire.MaxFrameSize {
				err = wire.ErrFrameTooLarge
			}
			if err != nil {
				e.pending.Add(-1)
				logging.WarnWithContext(e.logger, "signal dropped", "signal_encode_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "signal was not delivered"),
					logging.String(logging.FieldErrorHint, "publish JSON-serializable values under 1MB encoded"),
				)
				continue
			}
			err = wire.WriteFrame(conn, frame)
			e.pending.Add(-1)
			if err != nil {
				e.consumerLost(err, &env)
				return
			}
		}
	}
}

// watchPeer reports when the consumer closes its end. Consumers never
// write, so any read result other than blocking means the peer is gone.
func watchPeer(conn net.Conn) <-chan struct{} {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		buf := make([]byte, 64)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
	return gone
}

// consumerLost clears the claim so the next consumer can attach.
func (e *Endpoint) consumerLost(sendErr error, dropped *wire.Envelope) {
	if e.isClosed() {
		return
	}
	if dropped != nil {
		logging.WarnWithContext(e.logger, "consumer gone, signal dropped", "signal_dropped",
			logging.Error(sendErr),
			logging.String("signal", dropped.SignalText()),
			logging.String(logging.FieldImpact, "signal is not redelivered"),
			logging.String(logging.FieldErrorHint, "signals are delivered at most once"),
		)
	} else {
		e.logger.Info("consumer detached", logging.Event("consumer_detached"))
	}
	if err := e.claim.Release(e.dir); err != nil {
		logging.WarnWithContext(e.logger, "failed to remove lock file", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no consumer can claim this publisher"),
			logging.String(logging.FieldErrorHint, "remove the lockfile manually"),
		)
	}
}

func (e *Endpoint) setConn(conn net.Conn) {
	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()
}

func (e *Endpoint) isClosed() bool {
	select {
	case <-e.closed:
		return true
	default:
		return false
	}
}

// Close tears the endpoint down: descriptor, listener, lock file and the
// subdirectory. The rendezvous root is left alone. Signals still queued are
// discarded.
func (e *Endpoint) Close() error {
	var errs []error
	e.once.Do(func() {
		close(e.closed)

		if err := os.Remove(e.descriptor); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove descriptor: %w", err))
		}
		if err := e.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close listener: %w", err))
		}
		e.mu.Lock()
		if e.conn != nil {
			_ = e.conn.Close()
		}
		e.mu.Unlock()
		if err := e.liveness.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release liveness lock: %w", err))
		}
		if err := e.claim.Release(e.dir); err != nil {
			errs = append(errs, fmt.Errorf("remove lock file: %w", err))
		}
		if err := os.Remove(e.address); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove socket: %w", err))
		}
		if err := os.Remove(e.dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove rendezvous directory: %w", err))
		}

		if len(errs) > 0 {
			logging.WarnWithContext(e.logger, "publisher teardown incomplete", "publisher_cleanup_failed",
				logging.Error(errors.Join(errs...)),
				logging.String(logging.FieldImpact, "stale rendezvous entries may remain"),
				logging.String(logging.FieldErrorHint, "run filterms sweep"),
			)
			return
		}
		e.logger.Debug("publisher endpoint closed", logging.Event("publisher_closed"))
	})
	return errors.Join(errs...)
}

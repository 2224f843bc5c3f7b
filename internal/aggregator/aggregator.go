package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"strings"
	"time"

	"filterms/internal/logging"
	"filterms/internal/rendezvous"
)

const (
	defaultPollInterval      = 100 * time.Millisecond
	defaultDialTimeout       = 2 * time.Second
	defaultMaxFramesPerCycle = 64
)

// Options configures an Aggregator.
type Options struct {
	// Service names the rendezvous namespace.
	Service string
	// Root overrides the rendezvous root; empty uses the temp-directory rule.
	Root string
	// Sink receives every relayed frame. Required.
	Sink Sink
	// Claim arbitrates access to publishers; defaults to the lock file.
	Claim  rendezvous.Claim
	Logger *slog.Logger

	PollInterval time.Duration
	DialTimeout  time.Duration
	// MaxFramesPerCycle bounds how many frames one connection may forward
	// per poll so a chatty publisher cannot starve the refresh step.
	MaxFramesPerCycle int
}

// PeerStatus describes one tracked publisher.
type PeerStatus struct {
	PID             int
	EndpointAddress string
	State           State
}

// Aggregator multiplexes every discovered publisher onto one Sink. Its
// methods are not safe for concurrent use; Run drives them from a single
// goroutine.
type Aggregator struct {
	root   string
	sink   Sink
	claim  rendezvous.Claim
	logger *slog.Logger
	dialer net.Dialer

	pollInterval time.Duration
	maxFrames    int

	conns map[string]*connection
	// orphans remembers dead publishers already reported so the warning is
	// logged once per descriptor.
	orphans map[string]struct{}
}

// New validates options and returns an idle Aggregator.
func New(opts Options) (*Aggregator, error) {
	service := strings.TrimSpace(opts.Service)
	if service == "" && strings.TrimSpace(opts.Root) == "" {
		return nil, errors.New("aggregator requires a service name")
	}
	if opts.Sink == nil {
		return nil, errors.New("aggregator requires a sink")
	}
	claim := opts.Claim
	if claim == nil {
		claim = rendezvous.LockFileClaim{}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	maxFrames := opts.MaxFramesPerCycle
	if maxFrames <= 0 {
		maxFrames = defaultMaxFramesPerCycle
	}
	root := rendezvous.ResolveRoot(opts.Root, service)

	return &Aggregator{
		root:  root,
		sink:  opts.Sink,
		claim: claim,
		logger: logging.NewComponentLogger(opts.Logger, "aggregator").With(
			logging.String(logging.FieldService, service),
		),
		dialer:       net.Dialer{Timeout: dialTimeout},
		pollInterval: pollInterval,
		maxFrames:    maxFrames,
		conns:        make(map[string]*connection),
		orphans:      make(map[string]struct{}),
	}, nil
}

// Root returns the rendezvous root being scanned.
func (a *Aggregator) Root() string { return a.root }

// Run loops poll, refresh, sleep until ctx is cancelled, then releases
// every claim. Errors inside a cycle are logged and the next cycle starts
// normally.
func (a *Aggregator) Run(ctx context.Context) error {
	defer a.Close()
	a.logger.Info("aggregator started",
		logging.Event("aggregator_started"),
		logging.String("root", a.root),
		logging.Duration("poll_interval", a.pollInterval),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("aggregator stopping", logging.Event("aggregator_stopping"))
			return nil
		case <-timer.C:
		}
		if err := a.cycle(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(a.logger, "aggregator cycle abandoned", "cycle_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "signals are delayed until the next cycle"),
			)
		}
		timer.Reset(a.pollInterval)
	}
}

func (a *Aggregator) cycle(ctx context.Context) error {
	var errs []error
	if err := a.Poll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("poll: %w", err))
	}
	if err := a.Refresh(ctx); err != nil {
		errs = append(errs, fmt.Errorf("refresh: %w", err))
	}
	return errors.Join(errs...)
}

// Poll forwards frames already received from live connections to the sink
// without waiting for more. Connections whose stream ended are marked bad
// and are never polled again. A frame the sink rejects is logged and lost;
// that connection's remaining frames wait for the next poll while the other
// connections are still served.
func (a *Aggregator) Poll(ctx context.Context) error {
	var errs []error
	for _, key := range a.keys() {
		c := a.conns[key]
		if c.bad {
			continue
		}
		err := c.drain(a.maxFrames, func(frame []byte) error {
			return a.sink.Deliver(ctx, frame)
		})
		if err != nil {
			logging.WarnWithContext(a.logger, "signal not delivered", "sink_failed",
				logging.Error(err),
				logging.PeerPID(c.record.PID),
				logging.String(logging.FieldImpact, "one signal from this publisher was lost"),
				logging.String(logging.FieldErrorHint, "check the output stream and the history database"),
			)
			errs = append(errs, fmt.Errorf("deliver signal from pid %d: %w", c.record.PID, err))
			continue
		}
		if c.bad {
			a.logger.Info("publisher connection ended",
				logging.Event("connection_bad"),
				logging.PeerPID(c.record.PID),
				logging.String("reason", endReason(c.err)),
			)
		}
	}
	return errors.Join(errs...)
}

// Refresh purges bad connections, expires peers whose endpoint vanished,
// then scans for unclaimed publishers and connects to every one it can
// claim.
func (a *Aggregator) Refresh(ctx context.Context) error {
	for key, c := range a.conns {
		if c.bad {
			a.purge(key, c)
		}
	}
	for _, c := range a.conns {
		if c.expiring {
			continue
		}
		current := rendezvous.Resolve(rendezvous.Peer{PID: c.record.PID, DescriptorPath: c.record.DescriptorPath})
		if current.Key() != c.record.Key() || !current.EndpointExists() {
			a.logger.Info("publisher vanished",
				logging.Event("peer_vanished"),
				logging.PeerPID(c.record.PID),
			)
			// Frames still in flight belong to the consumer; the reader ends
			// after the grace period and the next cycles drain and purge it.
			c.expire(a.pollInterval)
		}
	}

	for peer := range rendezvous.Scan(a.root) {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := rendezvous.Resolve(peer)
		if !rec.Resolvable() {
			continue
		}
		if _, tracked := a.conns[rec.Key()]; tracked {
			continue
		}
		a.attach(ctx, peer, rec)
	}
	return nil
}

func (a *Aggregator) attach(ctx context.Context, peer rendezvous.Peer, rec rendezvous.PeerRecord) {
	ok, err := a.claim.TryClaim(peer.Dir)
	if err != nil {
		logging.WarnWithContext(a.logger, "claim failed", "claim_failed",
			logging.Error(err),
			logging.PeerPID(peer.PID),
			logging.String(logging.FieldImpact, "publisher skipped this cycle"),
			logging.String(logging.FieldErrorHint, "check write permission on the rendezvous directory"),
		)
		return
	}
	if !ok {
		return
	}

	conn, err := a.dialer.DialContext(ctx, "unix", rec.EndpointAddress)
	if err != nil {
		if rerr := a.claim.Release(peer.Dir); rerr != nil {
			a.logger.Debug("release after failed dial", logging.Error(rerr))
		}
		a.reportUnreachable(rec, err)
		return
	}
	delete(a.orphans, rec.Key())
	a.conns[rec.Key()] = newConnection(rec, conn)
	a.logger.Info("publisher attached",
		logging.Event("peer_attached"),
		logging.PeerPID(rec.PID),
		logging.String("endpoint", rec.EndpointAddress),
	)
}

// reportUnreachable logs a failed dial. A descriptor nobody holds a
// liveness lock on belongs to a dead publisher; that is reported once.
func (a *Aggregator) reportUnreachable(rec rendezvous.PeerRecord, dialErr error) {
	alive, err := rendezvous.Alive(rec.DescriptorPath)
	if err == nil && !alive {
		if _, seen := a.orphans[rec.Key()]; seen {
			return
		}
		a.orphans[rec.Key()] = struct{}{}
		logging.WarnWithContext(a.logger, "orphaned publisher entry", "peer_orphaned",
			logging.PeerPID(rec.PID),
			logging.String("dir", rec.Dir()),
			logging.String(logging.FieldImpact, "entry is rescanned every cycle"),
			logging.String(logging.FieldErrorHint, "run filterms sweep"),
		)
		return
	}
	a.logger.Debug("publisher unreachable",
		logging.Event("peer_dial_failed"),
		logging.PeerPID(rec.PID),
		logging.Error(dialErr),
	)
}

// purge forgets a connection and releases its claim, whether or not this
// aggregator created the lock file.
func (a *Aggregator) purge(key string, c *connection) {
	delete(a.conns, key)
	c.close()
	if err := a.claim.Release(c.record.Dir()); err != nil {
		logging.WarnWithContext(a.logger, "failed to release claim", "claim_release_failed",
			logging.Error(err),
			logging.PeerPID(c.record.PID),
			logging.String(logging.FieldImpact, "publisher stays claimed until its next consumer disconnects"),
			logging.String(logging.FieldErrorHint, "remove the lockfile manually"),
		)
		return
	}
	a.logger.Debug("claim released",
		logging.Event("claim_released"),
		logging.PeerPID(c.record.PID),
	)
}

// Peers reports every tracked publisher ordered by pid.
func (a *Aggregator) Peers() []PeerStatus {
	peers := make([]PeerStatus, 0, len(a.conns))
	for _, key := range a.keys() {
		c := a.conns[key]
		peers = append(peers, PeerStatus{
			PID:             c.record.PID,
			EndpointAddress: c.record.EndpointAddress,
			State:           c.state(),
		})
	}
	return peers
}

// keys returns tracked connection keys ordered by pid, so one cycle visits
// peers in a stable order.
func (a *Aggregator) keys() []string {
	return slices.SortedFunc(maps.Keys(a.conns), func(x, y string) int {
		return a.conns[x].record.PID - a.conns[y].record.PID
	})
}

// Close releases every tracked claim and closes the connections.
func (a *Aggregator) Close() {
	for key, c := range a.conns {
		a.purge(key, c)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"filterms/internal/logging"
	"filterms/internal/publisher"
	"filterms/internal/wire"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var pid int
	var deliverTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "publish [signal...]",
		Short: "Publish signals to the first aggregator that connects",
		Long: `Start a publisher endpoint in the rendezvous directory and send each
argument, then each stdin line, as a signal. JSON objects are sent as tagged
payloads; anything else is sent as a raw value.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger, err := ctx.logger("")
			if err != nil {
				return err
			}
			if pid <= 0 {
				pid = cfg.PublisherPID()
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ep, err := publisher.New(publisher.Options{
				Service: cfg.Service.Name,
				Root:    cfg.Service.RendezvousDir,
				PID:     pid,
				Buffer:  cfg.Publisher.Buffer,
				Logger:  logger,
			})
			if err != nil {
				return fmt.Errorf("start publisher: %w", err)
			}
			defer ep.Close()

			served := make(chan error, 1)
			go func() { served <- ep.Serve(runCtx) }()

			fmt.Fprintf(cmd.ErrOrStderr(), "Publishing as pid %d at %s\n", ep.PID(), ep.Address())

			for _, arg := range args {
				if err := ep.Publish(runCtx, wire.ParseLine(arg)); err != nil {
					return publishStopped(err)
				}
			}
			if err := publishLines(runCtx, ep, cmd.InOrStdin()); err != nil {
				return publishStopped(err)
			}

			if deliverTimeout > 0 {
				flushCtx, cancel := context.WithTimeout(runCtx, deliverTimeout)
				err := ep.Flush(flushCtx)
				cancel()
				if err != nil && runCtx.Err() == nil {
					logging.WarnWithContext(logger, "signals left undelivered", "publish_flush_timeout",
						logging.Int("pending", ep.Pending()),
						logging.String(logging.FieldImpact, "queued signals are discarded on exit"),
						logging.String(logging.FieldErrorHint, "start an aggregator or raise --deliver-timeout"),
					)
				}
			}

			if err := ep.Close(); err != nil {
				return err
			}
			return <-served
		},
	}

	cmd.Flags().IntVar(&pid, "pid", 0, "Identity to publish under (default service.pid or the process id)")
	cmd.Flags().DurationVar(&deliverTimeout, "deliver-timeout", 30*time.Second, "How long to wait for queued signals after input ends (0 exits immediately)")
	return cmd
}

// publishLines publishes every non-blank line of r until EOF or ctx ends.
func publishLines(ctx context.Context, ep *publisher.Endpoint, r io.Reader) error {
	err := forEachLine(ctx, r, func(line string) error {
		line = strings.TrimSpace(line)
		if line == "" {
			return nil
		}
		return ep.Publish(ctx, wire.ParseLine(line))
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, publisher.ErrClosed) {
		return fmt.Errorf("read signals: %w", err)
	}
	return err
}

func publishStopped(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, publisher.ErrClosed) {
		return nil
	}
	return err
}

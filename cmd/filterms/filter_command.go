package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"filterms/internal/logging"
	"filterms/internal/providerfilter"
	"filterms/internal/publisher"
)

func newFilterCommand(ctx *commandContext) *cobra.Command {
	var publish bool
	var deliverTimeout time.Duration
	var whitelist, blacklist, features []string

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Decide on provider offers read as JSON lines from stdin",
		Long: `Read one provider per line ({"name":..., "id":..., "cpu_capabilities":[...]}),
decide with the configured whitelist, blacklist and required CPU features, and
print each decision. With --publish every decision is also sent as an
accept/reject signal to the attached aggregator.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger, err := ctx.logger("")
			if err != nil {
				return err
			}

			opts := providerfilter.Options{
				Whitelist: cfg.Filter.Whitelist,
				Blacklist: cfg.Filter.Blacklist,
				Features:  cfg.Filter.Features,
				Verbose:   cfg.Filter.Verbose,
				Logger:    logger,
			}
			if cmd.Flags().Changed("whitelist") {
				opts.Whitelist = whitelist
			}
			if cmd.Flags().Changed("blacklist") {
				opts.Blacklist = blacklist
			}
			if cmd.Flags().Changed("features") {
				opts.Features = features
			}
			filter := providerfilter.New(opts)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var ep *publisher.Endpoint
			served := make(chan error, 1)
			if publish {
				ep, err = publisher.New(publisher.Options{
					Service: cfg.Service.Name,
					Root:    cfg.Service.RendezvousDir,
					PID:     cfg.PublisherPID(),
					Buffer:  cfg.Publisher.Buffer,
					Logger:  logger,
				})
				if err != nil {
					return fmt.Errorf("start publisher: %w", err)
				}
				defer ep.Close()
				go func() { served <- ep.Serve(runCtx) }()
			}

			out := cmd.OutOrStdout()
			line := 0
			err = forEachLine(runCtx, cmd.InOrStdin(), func(text string) error {
				line++
				text = strings.TrimSpace(text)
				if text == "" {
					return nil
				}
				var offer providerfilter.ProviderInfo
				err := json.Unmarshal([]byte(text), &offer)
				if err == nil && strings.TrimSpace(offer.ID) == "" {
					err = errors.New("offer has no provider id")
				}
				if err != nil {
					logging.WarnWithContext(logger, "offer skipped", "offer_invalid",
						logging.Int("line", line),
						logging.Error(err),
						logging.String(logging.FieldErrorHint, `offers need at least an "id" field`),
					)
					return nil
				}

				d := filter.Evaluate(offer)
				verdict := "reject"
				if d.Allowed {
					verdict = "accept"
				}
				fmt.Fprintf(out, "%s %s %s\n", verdict, d.Provider.String(), d.Reason)

				if ep != nil {
					return ep.Publish(runCtx, d.Payload())
				}
				return nil
			})
			if errors.Is(err, context.Canceled) || errors.Is(err, publisher.ErrClosed) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read offers: %w", err)
			}

			if ep == nil {
				return nil
			}
			if deliverTimeout > 0 {
				flushCtx, cancel := context.WithTimeout(runCtx, deliverTimeout)
				if err := ep.Flush(flushCtx); err != nil && runCtx.Err() == nil {
					logging.WarnWithContext(logger, "decisions left undelivered", "publish_flush_timeout",
						logging.Int("pending", ep.Pending()),
						logging.String(logging.FieldImpact, "queued decisions are discarded on exit"),
					)
				}
				cancel()
			}
			if err := ep.Close(); err != nil {
				return err
			}
			return <-served
		},
	}

	cmd.Flags().BoolVar(&publish, "publish", false, "Publish each decision as a signal")
	cmd.Flags().DurationVar(&deliverTimeout, "deliver-timeout", 30*time.Second, "How long to wait for published decisions after input ends")
	cmd.Flags().StringSliceVar(&whitelist, "whitelist", nil, "Override filter.whitelist")
	cmd.Flags().StringSliceVar(&blacklist, "blacklist", nil, "Override filter.blacklist")
	cmd.Flags().StringSliceVar(&features, "features", nil, "Override filter.features")
	return cmd
}


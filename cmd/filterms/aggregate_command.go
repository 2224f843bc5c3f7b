package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"filterms/internal/aggregator"
	"filterms/internal/config"
	"filterms/internal/logging"
	"filterms/internal/record"
)

func newAggregateCommand(ctx *commandContext) *cobra.Command {
	var output string
	var recordPath string
	var noRecord bool

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Collect signals from every publisher until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			sessionID := uuid.NewString()
			logger, err := ctx.logger(sessionID)
			if err != nil {
				return err
			}

			mode := strings.ToLower(strings.TrimSpace(output))
			if mode == "" {
				mode = cfg.Aggregator.Output
			}
			out := cmd.OutOrStdout()
			var display aggregator.Sink
			switch mode {
			case config.OutputRaw:
				display = aggregator.NewWriterSink(out)
			case config.OutputPretty:
				display = aggregator.NewPrettySink(out, shouldColorize(out))
			case config.OutputAuto, "":
				if shouldColorize(out) {
					display = aggregator.NewPrettySink(out, true)
				} else {
					display = aggregator.NewWriterSink(out)
				}
			default:
				return fmt.Errorf("unsupported output %q (want auto, raw or pretty)", output)
			}
			sinks := aggregator.MultiSink{display}

			if !noRecord {
				var store *record.Store
				if path := strings.TrimSpace(recordPath); path != "" {
					expanded, err := config.ExpandPath(path)
					if err != nil {
						return fmt.Errorf("resolve record path: %w", err)
					}
					store, err = record.OpenPath(expanded)
					if err != nil {
						return fmt.Errorf("open signal history: %w", err)
					}
				} else {
					store, err = record.Open(cfg)
					if err != nil && !errors.Is(err, record.ErrDisabled) {
						return fmt.Errorf("open signal history: %w", err)
					}
				}
				if store != nil {
					defer store.Close()
					sinks = append(sinks, record.NewSink(store, sessionID))
					logger.Info("recording signals",
						logging.Event("history_enabled"),
						logging.String("path", store.Path()),
					)
				}
			}

			agg, err := aggregator.New(aggregator.Options{
				Service:           cfg.Service.Name,
				Root:              cfg.Service.RendezvousDir,
				Sink:              sinks,
				Logger:            logger,
				PollInterval:      cfg.PollInterval(),
				DialTimeout:       cfg.DialTimeout(),
				MaxFramesPerCycle: cfg.Aggregator.MaxFramesPerCycle,
			})
			if err != nil {
				return fmt.Errorf("start aggregator: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return agg.Run(runCtx)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: auto, raw or pretty (default aggregator.output)")
	cmd.Flags().StringVar(&recordPath, "record", "", "Record signals to this SQLite file (default aggregator.record_path)")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "Do not record signals even when a history is configured")
	return cmd
}

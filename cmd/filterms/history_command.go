package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"filterms/internal/record"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var pid int
	var session string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show signals recorded by aggregators",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			signals, err := store.List(cmd.Context(), record.ListOptions{
				SessionID: session,
				PID:       pid,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(signals) == 0 {
				fmt.Fprintln(out, "No signals recorded")
				return nil
			}

			rows := make([][]string, 0, len(signals))
			for _, sig := range signals {
				rows = append(rows, []string{
					strconv.FormatInt(sig.ID, 10),
					sig.ReceivedAt.Local().Format("2006-01-02 15:04:05"),
					strconv.Itoa(sig.PID),
					sig.ExeName,
					sig.Signal,
					shortSession(sig.SessionID),
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{header: "ID", numeric: true},
				{header: "Received"},
				{header: "PID", numeric: true},
				{header: "Exename"},
				{header: "Signal"},
				{header: "Session"},
			}, rows))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of signals to show (0 for all)")
	cmd.Flags().IntVar(&pid, "pid", 0, "Only show signals from this publisher")
	cmd.Flags().StringVar(&session, "session", "", "Only show signals from this aggregator session")

	cmd.AddCommand(newHistoryClearCommand(ctx))
	return cmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d signal(s)\n", removed)
			return nil
		},
	}
}

func openHistory(ctx *commandContext) (*record.Store, error) {
	store, err := record.Open(ctx.configValue())
	if errors.Is(err, record.ErrDisabled) {
		return nil, errors.New("signal history is disabled; set aggregator.record_path in the config")
	}
	if err != nil {
		return nil, fmt.Errorf("open signal history: %w", err)
	}
	return store, nil
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

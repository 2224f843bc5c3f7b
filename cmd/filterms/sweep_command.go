package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"filterms/internal/rendezvous"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove rendezvous entries left by publishers that exited without cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ctx.rendezvousRoot()
			out := cmd.OutOrStdout()

			results := rendezvous.Sweep(root)
			if len(results) == 0 {
				fmt.Fprintln(out, "No orphaned publishers found")
				return nil
			}

			var failed []error
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(out, "pid %d: %v\n", r.PID, r.Err)
					failed = append(failed, fmt.Errorf("pid %d: %w", r.PID, r.Err))
					continue
				}
				fmt.Fprintf(out, "Removed pid %d (%s)\n", r.PID, r.Dir)
			}
			if len(failed) > 0 {
				return fmt.Errorf("sweep incomplete: %w", errors.Join(failed...))
			}
			return nil
		},
	}
}

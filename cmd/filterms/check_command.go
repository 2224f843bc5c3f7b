package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"filterms/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the rendezvous directory and signal history are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			results := preflight.RunAll(cmd.Context(), ctx.configValue())
			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range results {
				mark := "ok  "
				if !r.Passed {
					mark = "FAIL"
					failed++
				}
				fmt.Fprintf(out, "%s %s: %s\n", mark, r.Name, r.Detail)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			return nil
		},
	}
}

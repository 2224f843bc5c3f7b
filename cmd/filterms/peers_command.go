package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"filterms/internal/rendezvous"
)

func newPeersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List publishers in the rendezvous directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ctx.rendezvousRoot()
			out := cmd.OutOrStdout()

			var rows [][]string
			for peer := range rendezvous.ScanAll(root) {
				rec := rendezvous.Resolve(peer)
				endpoint := rec.EndpointAddress
				if !rec.Resolvable() {
					endpoint = "(unreadable descriptor)"
				}
				alive := "unknown"
				if ok, err := rendezvous.Alive(peer.DescriptorPath); err == nil {
					alive = yesNo(ok)
				}
				rows = append(rows, []string{
					strconv.Itoa(peer.PID),
					endpoint,
					yesNo(peer.Claimed),
					alive,
				})
			}

			if len(rows) == 0 {
				fmt.Fprintf(out, "No publishers under %s\n", root)
				return nil
			}
			fmt.Fprintln(out, renderTable([]column{
				{header: "PID", numeric: true},
				{header: "Endpoint"},
				{header: "Claimed"},
				{header: "Alive"},
			}, rows))
			return nil
		},
	}
}

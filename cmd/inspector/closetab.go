package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCloseTabCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "close-tab <tab-id>",
		Short: "Signal that a tab was closed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tabID, err := parseTabArg(args[0])
			if err != nil {
				return err
			}
			if err := opts.client().TabClosed(cmd.Context(), tabID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Closed tab %d\n", tabID)
			return nil
		},
	}
}

package main

import (
	"errors"
	"fmt"

	"github.com/okian/abrantes/internal/popup"
	"github.com/spf13/cobra"
)

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <tab-id>",
		Short: "Forget everything seen on a tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tabID, err := parseTabArg(args[0])
			if err != nil {
				return err
			}
			c := opts.client()
			resp, err := c.ClearTabState(cmd.Context(), tabID)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if !resp.OK {
				return errors.New(resp.Error)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cleared tab %d\n\n", tabID)
			return popup.New(c, newRenderer(out, false)).Activate(cmd.Context(), tabID)
		},
	}
}

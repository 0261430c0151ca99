package main

import (
	"errors"

	"github.com/okian/abrantes/internal/domain/model"
	"github.com/spf13/cobra"
)

func newStateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state <tab-id>",
		Short: "Show the events seen on a tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tabID, err := parseTabArg(args[0])
			if err != nil {
				return err
			}
			c := opts.client()
			resp, err := c.GetTabState(cmd.Context(), tabID)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if !resp.OK {
				return errors.New(resp.Error)
			}
			state := model.EmptyTabState()
			if resp.State != nil {
				state = *resp.State
			}
			return newRenderer(cmd.OutOrStdout(), false).Render(tabID, state)
		},
	}
}

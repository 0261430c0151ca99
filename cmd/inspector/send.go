package main

import (
	"encoding/json"
	"fmt"

	"github.com/okian/abrantes/internal/capture"
	"github.com/okian/abrantes/internal/domain/model"
	"github.com/spf13/cobra"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	var href string
	cmd := &cobra.Command{
		Use:   "send <tab-id> <event-name> [detail-json]",
		Short: "Emit an event through the notify channel",
		Long: "Emit an event through the notify channel as if the page on <tab-id> had\n" +
			"dispatched it. Valid names: abrantes:assignVariant, abrantes:renderVariant,\n" +
			"abrantes:persist, abrantes:track, abrantes:formTrack.",
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tabID, err := parseTabArg(args[0])
			if err != nil {
				return err
			}
			name := args[1]
			if !model.IsRecognized(name) {
				return fmt.Errorf("unrecognised event %q", name)
			}
			var detail any
			if len(args) == 3 {
				if err := json.Unmarshal([]byte(args[2]), &detail); err != nil {
					return fmt.Errorf("invalid detail JSON: %w", err)
				}
			}

			c := opts.client()
			capture.NewCapturer(tabID, c).Capture(cmd.Context(), name, href, detail)
			_ = c.Close()
			if c.Dropped() > 0 {
				return fmt.Errorf("event was not delivered to %s", opts.server)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to tab %d\n", name, tabID)
			return nil
		},
	}
	cmd.Flags().StringVar(&href, "href", "about:blank", "page URL recorded with the event")
	return cmd
}

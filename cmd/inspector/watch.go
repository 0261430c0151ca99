package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/okian/abrantes/internal/adapters/notify"
	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/internal/popup"
	"github.com/okian/abrantes/pkg/logger"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var natsURL, subject string
	cmd := &cobra.Command{
		Use:   "watch <tab-id>",
		Short: "Follow a tab and re-render on every update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tabID, err := parseTabArg(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c := opts.client()

			q := popup.New(c, newRenderer(cmd.OutOrStdout(), true), popup.WithLogger(logger.Named("watch")))

			updates, stop, err := subscribe(ctx, opts, natsURL, subject, tabID)
			if err != nil {
				return err
			}
			defer stop()

			if err := q.Activate(ctx, tabID); err != nil {
				return err
			}
			if err := q.Follow(ctx, updates); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats", os.Getenv("ABRANTES_NATS_URL"), "follow updates from NATS instead of the relay stream")
	cmd.Flags().StringVar(&subject, "subject", notify.DefaultSubject, "NATS subject prefix")
	return cmd
}

// subscribe follows updates for tabID from NATS when natsURL is set, or
// from the relay's event stream otherwise.
func subscribe(ctx context.Context, opts *rootOptions, natsURL, subject string, tabID int) (<-chan types.Update, func(), error) {
	filter := notify.ForTab(tabID)
	if natsURL == "" {
		updates, err := opts.client().Subscribe(ctx, filter)
		if err != nil {
			return nil, nil, fmt.Errorf("following %s: %w", opts.server, err)
		}
		return updates, func() {}, nil
	}

	sub, err := notify.NewNATSSubscriber(natsURL, subject,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Named("watch").Warn(ctx, "nats disconnected", logger.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to nats: %w", err)
	}
	updates, cancel, err := sub.Subscribe(filter)
	if err != nil {
		_ = sub.Close()
		return nil, nil, err
	}
	return updates, func() {
		cancel()
		_ = sub.Close()
	}, nil
}

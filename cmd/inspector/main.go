// Command inspector queries, clears and follows per-tab Abrantes state on a relay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/abrantes/internal/client"
	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/logger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	server     string
	jsonOutput bool
	verbose    bool
}

func defaultServer() string {
	if s := os.Getenv("ABRANTES_SERVER"); s != "" {
		return s
	}
	return "http://127.0.0.1:8137"
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := logger.Init(logger.WithOutput(os.Stderr)); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	_ = logger.SetLevelString("warn")

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "inspector",
		Short:         "Inspect Abrantes events captured per tab",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				_ = logger.SetLevelString("debug")
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer(), "relay base URL")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log dropped requests")

	root.AddCommand(newStateCmd(opts))
	root.AddCommand(newClearCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newSendCmd(opts))
	root.AddCommand(newCloseTabCmd(opts))

	return root
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.server, client.WithLogger(logger.Named("inspector")))
}

func parseTabArg(raw string) (int, error) {
	id, ok := types.ParseTabIDString(raw)
	if !ok {
		return 0, fmt.Errorf("invalid tab id %q: must be an integer", raw)
	}
	return id, nil
}

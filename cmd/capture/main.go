// Command capture opens a page in Chrome and relays the Abrantes events it
// dispatches to the aggregator under a fixed tab id.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/abrantes/internal/capture"
	"github.com/okian/abrantes/internal/client"
	"github.com/okian/abrantes/pkg/logger"
	"github.com/spf13/cobra"
)

type options struct {
	server   string
	tabID    int
	headless bool
	chrome   string
	logLevel string
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

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "capture <url>",
		Short:         "Capture Abrantes events from a page",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", defaultServer(), "relay base URL")
	cmd.Flags().IntVar(&opts.tabID, "tab-id", 1, "tab id events are attributed to")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "run Chrome without a window")
	cmd.Flags().StringVar(&opts.chrome, "chrome", "", "path to the Chrome binary")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	return cmd
}

func run(ctx context.Context, opts *options, url string) error {
	if opts.tabID < 0 {
		return errors.New("tab-id must not be negative")
	}
	if err := logger.SetLevelString(opts.logLevel); err != nil {
		return err
	}
	log := logger.Named("capture")

	c := client.New(opts.server, client.WithLogger(log))
	defer func() {
		_ = c.Close()
		if n := c.Dropped(); n > 0 {
			log.Warn(ctx, "events not delivered", logger.Int64("dropped", n))
		}
	}()

	b := capture.NewBrowser(
		capture.NewCapturer(opts.tabID, c, capture.WithLogger(log)),
		capture.WithHeadless(opts.headless),
		capture.WithExecPath(opts.chrome),
		capture.WithTabCloser(c),
		capture.WithBrowserLogger(log),
	)
	return b.Run(ctx, url)
}

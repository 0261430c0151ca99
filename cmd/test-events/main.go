// Command test-events drives a running relay with simulated tabs and checks
// that every tab converges to the expected aggregated state.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/abrantes/internal/domain/model"
	"github.com/okian/abrantes/internal/testevents"
	"github.com/spf13/cobra"
)

// Default configuration constants.
const (
	defaultTabs         = 20
	defaultEventsPerTab = 250
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultWaitTimeout  = time.Minute
	defaultTestTimeout  = 10 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Test failed: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	config := &testevents.Config{}
	cmd := &cobra.Command{
		Use:   "test-events",
		Short: "Verify a running relay end to end",
		Example: `  # Test with default settings
  test-events

  # Many short tabs against another relay
  test-events --tabs 200 --events 20 --url http://localhost:9000`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			closer, err := testevents.SetupLogging(config.LogFile, config.Verbose)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTestTimeout)
			defer cancel()
			return testevents.Run(ctx, config)
		},
	}

	f := cmd.Flags()
	f.StringVar(&config.BaseURL, "url", "http://127.0.0.1:8137", "Base URL of the relay")
	f.IntVar(&config.Tabs, "tabs", defaultTabs, "Number of simulated tabs")
	f.IntVar(&config.FirstTab, "first-tab", 1000, "Id of the first simulated tab")
	f.IntVar(&config.EventsPerTab, "events", defaultEventsPerTab, "Captures sent per tab")
	f.IntVar(&config.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent senders")
	f.IntVar(&config.MaxHistory, "max-history", model.MaxHistory, "History bound configured on the relay")
	f.DurationVar(&config.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.DurationVar(&config.WaitTimeout, "wait", defaultWaitTimeout, "How long to wait for aggregation")
	f.StringVar(&config.OutputFile, "output", "", "Write generated events to this JSON file")
	f.StringVar(&config.LogFile, "log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
	f.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")
	return cmd
}

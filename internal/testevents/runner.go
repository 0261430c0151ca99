package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/abrantes/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes the complete relay test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting abrantes relay test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("tabs", config.Tabs),
		logger.Int("eventsPerTab", config.EventsPerTab),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.String("logFile", config.LogFile),
		logger.Bool("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate events
	plan, err := generatePlan(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("event generation failed: %w", err)
	}

	// Step 3: Start from empty tabs
	if err := clearTabs(ctx, config, plan); err != nil {
		return fmt.Errorf("clearing tabs failed: %w", err)
	}

	// Step 4: Submit events concurrently
	if err := submitEvents(ctx, config, plan, stats); err != nil {
		return fmt.Errorf("event submission failed: %w", err)
	}
	if stats.EventsDropped > 0 {
		return fmt.Errorf("event submission failed: %d events dropped", stats.EventsDropped)
	}

	// Step 5: Wait for processing and verify
	if err := waitAndVerify(ctx, config, plan, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Step 6: Save events to file
	if config.OutputFile != "" {
		if err := saveEventsToFile(ctx, config, plan.Events); err != nil {
			logger.Get().Warn(ctx, "failed to save events to file", logger.Error(err))
		}
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.BaseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{Timeout: config.Timeout}).Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()

	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveEventsToFile saves the generated events to a JSON file.
func saveEventsToFile(ctx context.Context, config *Config, events []Event) error {
	if len(events) == 0 {
		return fmt.Errorf("no events to save")
	}

	filename := config.OutputFile
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "events saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var deliveryRate, eventsPerSecond float64

	if stats.EventsGenerated > 0 {
		deliveryRate = float64(stats.EventsSubmitted-stats.EventsDropped) / float64(stats.EventsGenerated) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsDropped", stats.EventsDropped),
		logger.Int("tabsVerified", stats.TabsVerified),
		logger.Int("tabsMismatched", stats.TabsMismatched),
		logger.Duration("duration", stats.Duration),
		logger.Float64("deliveryRate", deliveryRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}

package testevents

import (
	"time"

	"github.com/okian/abrantes/internal/domain/model"
)

// Config holds configuration for the relay test
type Config struct {
	BaseURL      string        // Base URL of the relay
	Tabs         int           // Number of simulated tabs
	FirstTab     int           // Id of the first simulated tab
	EventsPerTab int           // Number of captures sent per tab
	Workers      int           // Number of concurrent senders
	MaxHistory   int           // History bound configured on the relay
	Timeout      time.Duration // HTTP request timeout
	WaitTimeout  time.Duration // How long to wait for aggregation
	OutputFile   string        // Output file for generated events
	LogFile      string        // Log file for test output
	Verbose      bool          // Enable verbose logging
}

// Event is one capture sent on behalf of a tab
type Event struct {
	TabID  int               `json:"tabId"`
	Record model.EventRecord `json:"record"`
}

// Plan is the generated workload together with the state each tab must reach
type Plan struct {
	Events   []Event
	ByTab    map[int][]Event
	Expected map[int]model.TabState
}

// Stats holds test statistics
type Stats struct {
	EventsGenerated int
	EventsSubmitted int
	EventsDropped   int
	TabsVerified    int
	TabsMismatched  int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

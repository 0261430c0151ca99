package testevents

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/okian/abrantes/internal/domain/model"
	"github.com/okian/abrantes/pkg/logger"
)

// Constants for detail generation.
const (
	variantCount = 3
	timestampGap = 7 // ms between captures on one tab
)

// randomInt returns a random int in [0, n) using crypto/rand.
func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// generatePlan builds the per-tab workload and folds it into the expected
// state every tab must reach once the relay has processed it.
func generatePlan(ctx context.Context, config *Config, stats *Stats) (*Plan, error) {
	logger.Get().Info(ctx, "generating events",
		logger.Int("tabs", config.Tabs),
		logger.Int("eventsPerTab", config.EventsPerTab))

	names := model.EventNames()
	base := time.Now().UnixMilli()
	plan := &Plan{
		Events:   make([]Event, 0, config.Tabs*config.EventsPerTab),
		ByTab:    make(map[int][]Event, config.Tabs),
		Expected: make(map[int]model.TabState, config.Tabs),
	}

	for t := 0; t < config.Tabs; t++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during event generation: %w", err)
		}
		tabID := config.FirstTab + t
		testID := uuid.NewString()
		state := model.EmptyTabState()
		events := make([]Event, 0, config.EventsPerTab)

		for i := 0; i < config.EventsPerTab; i++ {
			rec := model.EventRecord{
				EventName: names[randomInt(len(names))],
				Timestamp: base + int64(i*timestampGap),
				Href:      fmt.Sprintf("https://abrantes.test/tab/%d", tabID),
				Detail: map[string]any{
					"testId":  testID,
					"variant": randomInt(variantCount),
					"seq":     i,
				},
			}
			state.Apply(rec, config.MaxHistory)
			events = append(events, Event{TabID: tabID, Record: rec})
		}

		plan.ByTab[tabID] = events
		plan.Expected[tabID] = state
		plan.Events = append(plan.Events, events...)
	}

	stats.EventsGenerated = len(plan.Events)
	logger.Get().Info(ctx, "generated events successfully", logger.Int("count", len(plan.Events)))
	return plan, nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/abrantes/internal/domain/model"
)

// LoadTabState reads and decodes the persisted state of a tab. The boolean is
// false when nothing is stored for the tab.
func LoadTabState(ctx context.Context, s Store, tabID int) (model.TabState, bool, error) {
	raw, err := s.Get(ctx, TabStateKey(tabID))
	if errors.Is(err, ErrNotFound) {
		return model.TabState{}, false, nil
	}
	if err != nil {
		return model.TabState{}, false, err
	}
	var state model.TabState
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.TabState{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return state, true, nil
}

// SaveTabState encodes and persists state for a tab.
func SaveTabState(ctx context.Context, s Store, tabID int, state model.TabState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode tab state: %w", err)
	}
	return s.Set(ctx, TabStateKey(tabID), raw)
}

// DeleteTabState removes the persisted state of a tab.
func DeleteTabState(ctx context.Context, s Store, tabID int) error {
	return s.Delete(ctx, TabStateKey(tabID))
}

// PersistedTabs lists the tab identifiers that have stored state.
func PersistedTabs(ctx context.Context, s Store) ([]int, error) {
	keys, err := s.Keys(ctx, TabStateKeyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(keys))
	for _, k := range keys {
		if id, ok := ParseTabStateKey(k); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

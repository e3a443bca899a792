package lockout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"herbal-store/internal/clientstate"
	"herbal-store/internal/observability"
)

// Store persists one State per browser. The key is not scoped by the email
// being attempted, so every identity tried from a browser shares a counter.
type Store struct {
	kv     clientstate.Store
	logger *observability.Logger
}

func NewStore(kv clientstate.Store, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Store{kv: kv, logger: logger}
}

func (s *Store) Load(ctx context.Context, browserID string) (State, error) {
	raw, err := s.kv.Get(ctx, clientstate.BrowserKey(browserID, clientstate.KeyRateLimit))
	if err != nil {
		if errors.Is(err, clientstate.ErrNotFound) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("load lockout state: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		s.logger.Warn("lockout_state_corrupt", map[string]any{"error": err.Error()})
		return State{}, nil
	}
	if state.Attempts < 0 {
		state.Attempts = 0
	}

	return state, nil
}

func (s *Store) Save(ctx context.Context, browserID string, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode lockout state: %w", err)
	}

	if err := s.kv.Set(ctx, clientstate.BrowserKey(browserID, clientstate.KeyRateLimit), string(raw), 0); err != nil {
		return fmt.Errorf("save lockout state: %w", err)
	}
	return nil
}

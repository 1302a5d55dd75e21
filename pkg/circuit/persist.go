package circuit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// persistedState is the on-disk snapshot of a breaker. Orchestrator runs
// are separate processes, so failure counts must survive across them for
// the breaker to ever trip.
type persistedState struct {
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time"`
}

// Load restores a breaker from the given state file. A missing file yields
// a fresh closed breaker; an unreadable one is surfaced as an error rather
// than silently resetting the trip count.
func Load(path string, config Config) (Breaker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(config), nil
		}
		return nil, fmt.Errorf("failed to read breaker state: %w", err)
	}

	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("failed to parse breaker state: %w", err)
	}

	b := &breaker{config: config}
	switch ps.State {
	case Open.String():
		b.state = Open
	case HalfOpen.String():
		b.state = HalfOpen
	default:
		b.state = Closed
	}
	b.failureCount = ps.FailureCount
	b.successCount = ps.SuccessCount
	b.lastFailureTime = ps.LastFailureTime
	return b, nil
}

// Save writes the breaker's current state to the given file.
func Save(path string, br Breaker) error {
	b, ok := br.(*breaker)
	if !ok {
		return fmt.Errorf("cannot persist breaker of type %T", br)
	}

	b.mu.RLock()
	ps := persistedState{
		State:           b.state.String(),
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailureTime,
	}
	b.mu.RUnlock()

	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal breaker state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create breaker state directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write breaker state: %w", err)
	}
	return nil
}

package event

import (
	"fmt"

	"github.com/millrun/mill/types"
)

// LifecycleInvariantError reports an event or status change that would
// violate the run lifecycle state machine. Surfacing one of these past the
// engine boundary indicates a defect, not an operational failure.
type LifecycleInvariantError struct {
	RunID   string
	Message string
}

func (e *LifecycleInvariantError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("lifecycle invariant violated: %s", e.Message)
	}
	return fmt.Sprintf("lifecycle invariant violated for run %s: %s", e.RunID, e.Message)
}

// LifecycleState tracks observed terminals for one run.
// The zero value is not usable; construct with NewLifecycleState.
type LifecycleState struct {
	// RunTerminal is the run-terminal event type observed, or "" if none.
	RunTerminal Type
	// SpawnTerminals maps spawn IDs to their observed terminal event type.
	SpawnTerminals map[string]Type
}

// NewLifecycleState returns the initial guard state (no terminals observed).
func NewLifecycleState() *LifecycleState {
	return &LifecycleState{SpawnTerminals: make(map[string]Type)}
}

// Apply validates ev against the current state and folds it in.
//
// Rejects any event after a run terminal, and any event carrying a spawn ID
// whose terminal has already been observed.
func (s *LifecycleState) Apply(ev *Event) error {
	if s.RunTerminal != "" {
		return &LifecycleInvariantError{
			RunID:   ev.RunID,
			Message: fmt.Sprintf("event %s after run terminal %s", ev.Type, s.RunTerminal),
		}
	}
	if spawnID := ev.SpawnID(); spawnID != "" {
		if terminal, ok := s.SpawnTerminals[spawnID]; ok {
			return &LifecycleInvariantError{
				RunID:   ev.RunID,
				Message: fmt.Sprintf("event %s for %s after spawn terminal %s", ev.Type, spawnID, terminal),
			}
		}
		if ev.Type.IsSpawnTerminal() {
			s.SpawnTerminals[spawnID] = ev.Type
		}
	}
	if ev.Type.IsRunTerminal() {
		s.RunTerminal = ev.Type
	}
	return nil
}

// Replay folds a persisted event sequence into a fresh guard state.
// A replay failure means the log itself violates the invariants.
func Replay(events []*Event) (*LifecycleState, error) {
	state := NewLifecycleState()
	for _, ev := range events {
		if err := state.Apply(ev); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// EnsureStatusTransition validates a run status change.
//
// Allowed: pending → pending|running|cancelled, running → running|terminal.
// Cancellation is legal before the worker ever starts; complete and failed
// require a running run. Any transition out of a terminal status is rejected.
func EnsureStatusTransition(current, next types.RunStatus) error {
	if current.IsTerminal() {
		return &LifecycleInvariantError{
			Message: fmt.Sprintf("status transition %s -> %s out of terminal status", current, next),
		}
	}
	switch current {
	case types.StatusPending:
		if next == types.StatusPending || next == types.StatusRunning || next == types.StatusCancelled {
			return nil
		}
	case types.StatusRunning:
		if next == types.StatusRunning || next.IsTerminal() {
			return nil
		}
	}
	return &LifecycleInvariantError{
		Message: fmt.Sprintf("illegal status transition %s -> %s", current, next),
	}
}

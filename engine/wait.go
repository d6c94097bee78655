package engine

import (
	"context"
	"time"

	"github.com/millrun/mill/event"
	"github.com/millrun/mill/types"
)

// Wait blocks until the run reaches a terminal state or the timeout
// elapses. It polls the persisted event log, replaying each snapshot
// through the lifecycle guard; on observing a run terminal it re-fetches
// the run record until the status matches.
func (e *Engine) Wait(ctx context.Context, runID string, timeout time.Duration) (*types.RunRecord, error) {
	if _, err := e.store.GetRun(runID); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		persisted, err := e.store.ReadEvents(runID)
		if err != nil {
			return nil, err
		}
		state, err := event.Replay(persisted)
		if err != nil {
			return nil, err
		}
		if state.RunTerminal != "" {
			// The terminal event lands before setStatus rewrites run.json;
			// keep polling until the record catches up.
			record, err := e.store.GetRun(runID)
			if err != nil {
				return nil, err
			}
			if record.Status.IsTerminal() {
				return record, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, &WaitTimeoutError{RunID: runID, TimeoutMillis: timeout.Milliseconds()}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

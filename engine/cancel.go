package engine

import (
	"context"

	"github.com/millrun/mill/event"
	"github.com/millrun/mill/types"
)

// CancelOutcome is the result of Cancel.
type CancelOutcome struct {
	Run *types.RunRecord
	// AlreadyTerminal is true when the run had finished before the call.
	AlreadyTerminal bool
}

// Cancel marks a run cancelled. Idempotent and race-safe: both the
// lifecycle guard rejection and the status-transition rejection are
// swallowed because the desired end state was reached by another path. The
// returned record always reflects the store's current state.
func (e *Engine) Cancel(ctx context.Context, runID, reason string) (*CancelOutcome, error) {
	record, err := e.store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if record.Status.IsTerminal() {
		return &CancelOutcome{Run: record, AlreadyTerminal: true}, nil
	}

	rs := e.stateFor(runID)
	if _, err := e.emit(ctx, rs, runID, event.TypeRunCancelled, event.RunCancelledPayload{Reason: reason}); err != nil {
		if !isLifecycleRejection(err) {
			return nil, err
		}
	}

	record, err = e.store.SetStatus(runID, types.StatusCancelled, e.clock())
	if err != nil {
		if !isLifecycleRejection(err) {
			return nil, err
		}
		record, err = e.store.GetRun(runID)
		if err != nil {
			return nil, err
		}
	}
	return &CancelOutcome{Run: record, AlreadyTerminal: false}, nil
}

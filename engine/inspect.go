package engine

import (
	"github.com/millrun/mill/event"
	"github.com/millrun/mill/types"
)

// Inspect report kinds.
const (
	InspectKindRun   = "run"
	InspectKindSpawn = "spawn"
)

// InspectReport is the drill-down view of a run or one of its spawns.
type InspectReport struct {
	Kind    string           `json:"kind"`
	RunID   string           `json:"runId"`
	SpawnID string           `json:"spawnId,omitempty"`
	Run     *types.RunRecord `json:"run,omitempty"`
	Events  []*event.Event   `json:"events"`
	// Result is a *types.RunResult for run reports and a
	// *types.SpawnResult for spawn reports; nil when not finalized.
	Result any `json:"result,omitempty"`
}

// InspectParams addresses a run or a single spawn within it.
type InspectParams struct {
	RunID   string
	SpawnID string
}

// Inspect returns the full event history of a run, or the subset scoped to
// one spawn along with that spawn's result.
func (e *Engine) Inspect(params InspectParams) (*InspectReport, error) {
	record, err := e.store.GetRun(params.RunID)
	if err != nil {
		return nil, err
	}
	events, err := e.store.ReadEvents(params.RunID)
	if err != nil {
		return nil, err
	}

	if params.SpawnID == "" {
		report := &InspectReport{
			Kind:   InspectKindRun,
			RunID:  record.ID,
			Run:    record,
			Events: events,
		}
		result, err := e.store.GetResult(params.RunID)
		if err != nil {
			return nil, err
		}
		if result != nil {
			report.Result = result
		}
		return report, nil
	}

	report := &InspectReport{
		Kind:    InspectKindSpawn,
		RunID:   record.ID,
		SpawnID: params.SpawnID,
	}
	for _, ev := range events {
		if ev.SpawnID() != params.SpawnID {
			continue
		}
		report.Events = append(report.Events, ev)
		if p, ok := ev.Payload.(event.SpawnCompletePayload); ok {
			result := p.Result
			report.Result = &result
		}
	}
	return report, nil
}

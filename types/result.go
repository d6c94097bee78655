package types

import "fmt"

// RunResult is the persisted terminal result of a run (result.json).
// Status is always one of the terminal statuses.
type RunResult struct {
	SchemaVersion int           `json:"schemaVersion"`
	RunID         string        `json:"runId"`
	Status        RunStatus     `json:"status"`
	StartedAt     string        `json:"startedAt"`
	CompletedAt   string        `json:"completedAt"`
	Spawns        []SpawnResult `json:"spawns"`
	ProgramResult string        `json:"programResult,omitempty"`
	ErrorMessage  string        `json:"errorMessage,omitempty"`
}

// Validate checks structural validity of a run result.
func (r *RunResult) Validate() error {
	if r.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schemaVersion %d", r.SchemaVersion)
	}
	if r.RunID == "" {
		return fmt.Errorf("run result missing runId")
	}
	if !r.Status.IsTerminal() {
		return fmt.Errorf("run result status %q is not terminal", r.Status)
	}
	return nil
}

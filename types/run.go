// Package types defines core domain types for the mill runtime.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// SchemaVersion is the version carried by every persisted value.
// Decoders fail on any other version.
const SchemaVersion = 1

// TimestampFormat is the wire format for all persisted timestamps (ISO 8601 UTC).
const TimestampFormat = time.RFC3339Nano

// FormatTimestamp renders t in the persisted timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// RunStatus is the lifecycle status of a run.
type RunStatus string

// Run status constants.
const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusComplete  RunStatus = "complete"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the status is terminal.
func (s RunStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusCancelled
}

// Valid returns true if s is a known run status.
func (s RunStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusComplete, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// RunPaths holds the absolute locations of a run's persisted files.
// All paths derive deterministically from the runs directory and run ID.
type RunPaths struct {
	RunDir     string `json:"runDir"`
	RunFile    string `json:"runFile"`
	EventsFile string `json:"eventsFile"`
	ResultFile string `json:"resultFile"`
}

// DeriveRunPaths computes the canonical file layout for a run.
func DeriveRunPaths(runsDirectory, runID string) RunPaths {
	runDir := filepath.Join(runsDirectory, runID)
	return RunPaths{
		RunDir:     runDir,
		RunFile:    filepath.Join(runDir, "run.json"),
		EventsFile: filepath.Join(runDir, "events.ndjson"),
		ResultFile: filepath.Join(runDir, "result.json"),
	}
}

// RunRecord is the persisted record for a run (run.json).
type RunRecord struct {
	SchemaVersion int               `json:"schemaVersion"`
	ID            string            `json:"id"`
	Status        RunStatus         `json:"status"`
	ProgramPath   string            `json:"programPath"`
	Driver        string            `json:"driver"`
	Executor      string            `json:"executor"`
	CreatedAt     string            `json:"createdAt"`
	UpdatedAt     string            `json:"updatedAt"`
	Paths         RunPaths          `json:"paths"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Validate checks structural validity of a run record.
func (r *RunRecord) Validate() error {
	if r.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schemaVersion %d", r.SchemaVersion)
	}
	if r.ID == "" {
		return errors.New("run record missing id")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid run status %q", r.Status)
	}
	return nil
}

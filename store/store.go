// Package store implements the per-run file store: an append-only NDJSON
// event log plus a JSON run record and a JSON result file under
// <runsDirectory>/<runId>/.
//
// The store exclusively owns writes to the run directory. It enforces run
// status transitions but performs no sequence checks on appended events;
// sequence correctness is the caller's obligation.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/millrun/mill/event"
	"github.com/millrun/mill/iox"
	"github.com/millrun/mill/types"
)

// Store is a run store rooted at a runs directory.
type Store struct {
	runsDirectory string
}

// New creates a store rooted at runsDirectory. The directory is created
// lazily on the first run creation.
func New(runsDirectory string) *Store {
	return &Store{runsDirectory: runsDirectory}
}

// RunsDirectory returns the root directory of the store.
func (s *Store) RunsDirectory() string {
	return s.runsDirectory
}

// CreateParams holds the inputs for creating a run record.
type CreateParams struct {
	RunID       string
	ProgramPath string
	Driver      string
	Executor    string
	Status      types.RunStatus
	Metadata    map[string]string
	Timestamp   time.Time
}

// Create creates the run directory, writes run.json, and creates an empty
// events.ndjson.
func (s *Store) Create(params CreateParams) (*types.RunRecord, error) {
	paths := types.DeriveRunPaths(s.runsDirectory, params.RunID)
	now := types.FormatTimestamp(params.Timestamp)

	record := &types.RunRecord{
		SchemaVersion: types.SchemaVersion,
		ID:            params.RunID,
		Status:        params.Status,
		ProgramPath:   params.ProgramPath,
		Driver:        params.Driver,
		Executor:      params.Executor,
		CreatedAt:     now,
		UpdatedAt:     now,
		Paths:         paths,
		Metadata:      params.Metadata,
	}

	if err := os.MkdirAll(paths.RunDir, 0o755); err != nil {
		return nil, &PersistenceError{Path: paths.RunDir, Message: "create run directory", Err: err}
	}
	if err := writePrettyJSON(paths.RunFile, record); err != nil {
		return nil, err
	}

	// Touch an empty event log so readers never race file creation.
	f, err := os.OpenFile(paths.EventsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &PersistenceError{Path: paths.EventsFile, Message: "create event log", Err: err}
	}
	iox.DiscardClose(f)

	return record, nil
}

// AppendEvent appends one encoded event line to events.ndjson with O_APPEND
// semantics.
func (s *Store) AppendEvent(runID string, ev *event.Event) error {
	paths := types.DeriveRunPaths(s.runsDirectory, runID)

	encoded, err := event.Encode(ev)
	if err != nil {
		return &PersistenceError{Path: paths.EventsFile, Message: "encode event", Err: err}
	}

	f, err := os.OpenFile(paths.EventsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &PersistenceError{Path: paths.EventsFile, Message: "open event log", Err: err}
	}
	defer iox.DiscardClose(f)

	if _, err := f.Write(append(encoded, '\n')); err != nil {
		return &PersistenceError{Path: paths.EventsFile, Message: "append event", Err: err}
	}
	return nil
}

// ReadEvents returns the persisted events in order. Blank lines are skipped;
// any malformed line surfaces a PersistenceError.
func (s *Store) ReadEvents(runID string) ([]*event.Event, error) {
	paths := types.DeriveRunPaths(s.runsDirectory, runID)

	if _, err := os.Stat(paths.RunFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &RunNotFoundError{RunID: runID}
		}
		return nil, &PersistenceError{Path: paths.RunFile, Message: "stat run record", Err: err}
	}

	f, err := os.Open(paths.EventsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &PersistenceError{Path: paths.EventsFile, Message: "open event log", Err: err}
	}
	defer iox.DiscardClose(f)

	var events []*event.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ev, err := event.Decode([]byte(line))
		if err != nil {
			return nil, &PersistenceError{Path: paths.EventsFile, Message: "decode event line", Err: err}
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, &PersistenceError{Path: paths.EventsFile, Message: "read event log", Err: err}
	}
	return events, nil
}

// maxEventLineBytes bounds a single event line. run:complete events embed the
// full RunResult, so the default scanner limit is too small.
const maxEventLineBytes = 16 * 1024 * 1024

// SetStatus validates and applies a status transition, rewriting run.json.
func (s *Store) SetStatus(runID string, status types.RunStatus, timestamp time.Time) (*types.RunRecord, error) {
	record, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if err := event.EnsureStatusTransition(record.Status, status); err != nil {
		return nil, err
	}
	record.Status = status
	record.UpdatedAt = types.FormatTimestamp(timestamp)
	if err := writePrettyJSON(record.Paths.RunFile, record); err != nil {
		return nil, err
	}
	return record, nil
}

// SetResult writes result.json once, then applies the result's terminal
// status to the run record.
func (s *Store) SetResult(runID string, result *types.RunResult, timestamp time.Time) (*types.RunRecord, error) {
	paths := types.DeriveRunPaths(s.runsDirectory, runID)
	if err := writePrettyJSON(paths.ResultFile, result); err != nil {
		return nil, err
	}
	return s.SetStatus(runID, result.Status, timestamp)
}

// GetRun decodes run.json.
func (s *Store) GetRun(runID string) (*types.RunRecord, error) {
	paths := types.DeriveRunPaths(s.runsDirectory, runID)
	data, err := os.ReadFile(paths.RunFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &RunNotFoundError{RunID: runID}
		}
		return nil, &PersistenceError{Path: paths.RunFile, Message: "read run record", Err: err}
	}
	var record types.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &PersistenceError{Path: paths.RunFile, Message: "decode run record", Err: err}
	}
	if err := record.Validate(); err != nil {
		return nil, &PersistenceError{Path: paths.RunFile, Message: "invalid run record", Err: err}
	}
	return &record, nil
}

// GetResult returns the run result, or nil if result.json does not exist.
func (s *Store) GetResult(runID string) (*types.RunResult, error) {
	paths := types.DeriveRunPaths(s.runsDirectory, runID)
	data, err := os.ReadFile(paths.ResultFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &PersistenceError{Path: paths.ResultFile, Message: "read run result", Err: err}
	}
	var result types.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &PersistenceError{Path: paths.ResultFile, Message: "decode run result", Err: err}
	}
	return &result, nil
}

// ListRuns enumerates direct children of the runs directory, best-effort.
// Entries that fail to decode are silently skipped. Output is sorted by
// createdAt descending and filtered by status when non-empty.
func (s *Store) ListRuns(status types.RunStatus) ([]*types.RunRecord, error) {
	entries, err := os.ReadDir(s.runsDirectory)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &PersistenceError{Path: s.runsDirectory, Message: "read runs directory", Err: err}
	}

	var records []*types.RunRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		record, err := s.GetRun(entry.Name())
		if err != nil {
			continue
		}
		if status != "" && record.Status != status {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt > records[j].CreatedAt
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

// writePrettyJSON writes v as pretty-printed JSON with a trailing newline.
func writePrettyJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &PersistenceError{Path: path, Message: "encode", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &PersistenceError{Path: path, Message: "create parent directory", Err: err}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return &PersistenceError{Path: path, Message: "write", Err: err}
	}
	return nil
}

package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/millrun/mill/event"
	"github.com/millrun/mill/types"
)

func testClock() time.Time {
	return time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir())
}

func createRun(t *testing.T, s *Store, runID string, status types.RunStatus) *types.RunRecord {
	t.Helper()
	record, err := s.Create(CreateParams{
		RunID:       runID,
		ProgramPath: "/tmp/program.ts",
		Driver:      "test",
		Executor:    "bun",
		Status:      status,
		Timestamp:   testClock(),
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", runID, err)
	}
	return record
}

func testEvent(runID string, seq int64, typ event.Type, payload event.Payload) *event.Event {
	return &event.Event{
		SchemaVersion: types.SchemaVersion,
		RunID:         runID,
		Sequence:      seq,
		Timestamp:     types.FormatTimestamp(testClock()),
		Type:          typ,
		Payload:       payload,
	}
}

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	created := createRun(t, s, "run_a", types.StatusPending)

	if created.Paths.RunFile != filepath.Join(s.RunsDirectory(), "run_a", "run.json") {
		t.Errorf("unexpected run file path %s", created.Paths.RunFile)
	}
	if _, err := os.Stat(created.Paths.EventsFile); err != nil {
		t.Errorf("event log should be touched at create: %v", err)
	}

	got, err := s.GetRun("run_a")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ID != "run_a" || got.Status != types.StatusPending || got.Driver != "test" {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun("run_missing")
	if !IsRunNotFound(err) {
		t.Fatalf("want RunNotFoundError, got %v", err)
	}
}

func TestAppendAndReadEvents(t *testing.T) {
	s := newTestStore(t)
	createRun(t, s, "run_a", types.StatusRunning)

	first := testEvent("run_a", 1, event.TypeRunStart, event.RunStartPayload{ProgramPath: "/p"})
	second := testEvent("run_a", 2, event.TypeRunStatus, event.RunStatusPayload{Status: types.StatusRunning})
	for _, ev := range []*event.Event{first, second} {
		if err := s.AppendEvent("run_a", ev); err != nil {
			t.Fatalf("AppendEvent(%d): %v", ev.Sequence, err)
		}
	}

	events, err := s.ReadEvents("run_a")
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Sequence != 1 || events[1].Sequence != 2 {
		t.Errorf("events out of order: %d, %d", events[0].Sequence, events[1].Sequence)
	}
}

func TestReadEventsSkipsBlankLines(t *testing.T) {
	s := newTestStore(t)
	record := createRun(t, s, "run_a", types.StatusRunning)
	if err := s.AppendEvent("run_a", testEvent("run_a", 1, event.TypeRunStart, event.RunStartPayload{})); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(record.Paths.EventsFile, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("\n\n"); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	events, err := s.ReadEvents("run_a")
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}
}

func TestReadEventsFailsOnMalformedLine(t *testing.T) {
	s := newTestStore(t)
	record := createRun(t, s, "run_a", types.StatusRunning)
	if err := os.WriteFile(record.Paths.EventsFile, []byte("not json\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.ReadEvents("run_a")
	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("want PersistenceError, got %v", err)
	}
}

func TestReadEventsMissingRun(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadEvents("run_missing")
	if !IsRunNotFound(err) {
		t.Fatalf("want RunNotFoundError, got %v", err)
	}
}

func TestSetStatusEnforcesTransitions(t *testing.T) {
	s := newTestStore(t)
	createRun(t, s, "run_a", types.StatusPending)

	record, err := s.SetStatus("run_a", types.StatusRunning, testClock().Add(time.Second))
	if err != nil {
		t.Fatalf("pending -> running: %v", err)
	}
	if record.Status != types.StatusRunning {
		t.Errorf("status = %s", record.Status)
	}
	if record.UpdatedAt == record.CreatedAt {
		t.Error("updatedAt should advance")
	}

	if _, err := s.SetStatus("run_a", types.StatusComplete, testClock()); err != nil {
		t.Fatalf("running -> complete: %v", err)
	}
	if _, err := s.SetStatus("run_a", types.StatusRunning, testClock()); err == nil {
		t.Error("complete -> running should be rejected")
	}
}

func TestSetResultWritesFileAndStatus(t *testing.T) {
	s := newTestStore(t)
	createRun(t, s, "run_a", types.StatusRunning)

	result := &types.RunResult{
		SchemaVersion: types.SchemaVersion,
		RunID:         "run_a",
		Status:        types.StatusComplete,
		StartedAt:     types.FormatTimestamp(testClock()),
		CompletedAt:   types.FormatTimestamp(testClock().Add(time.Second)),
	}
	record, err := s.SetResult("run_a", result, testClock().Add(time.Second))
	if err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	if record.Status != types.StatusComplete {
		t.Errorf("status = %s", record.Status)
	}

	got, err := s.GetResult("run_a")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got == nil || got.Status != types.StatusComplete {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestGetResultAbsent(t *testing.T) {
	s := newTestStore(t)
	createRun(t, s, "run_a", types.StatusRunning)
	result, err := s.GetResult("run_a")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if result != nil {
		t.Errorf("want nil result, got %+v", result)
	}
}

func TestListRunsSortsAndFilters(t *testing.T) {
	s := newTestStore(t)
	for i, spec := range []struct {
		id     string
		status types.RunStatus
		at     time.Time
	}{
		{"run_old", types.StatusComplete, testClock()},
		{"run_new", types.StatusRunning, testClock().Add(time.Minute)},
		{"run_mid", types.StatusComplete, testClock().Add(30 * time.Second)},
	} {
		if _, err := s.Create(CreateParams{
			RunID:     spec.id,
			Status:    spec.status,
			Driver:    "test",
			Executor:  "bun",
			Timestamp: spec.at,
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	// A stray non-run directory is skipped.
	if err := os.MkdirAll(filepath.Join(s.RunsDirectory(), "junk"), 0o755); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListRuns("")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d runs, want 3", len(all))
	}
	if all[0].ID != "run_new" || all[1].ID != "run_mid" || all[2].ID != "run_old" {
		t.Errorf("order = %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	complete, err := s.ListRuns(types.StatusComplete)
	if err != nil {
		t.Fatalf("ListRuns(complete): %v", err)
	}
	if len(complete) != 2 {
		t.Errorf("got %d complete runs, want 2", len(complete))
	}
}

func TestListRunsEmptyDirectory(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist"))
	records, err := s.ListRuns("")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if records != nil {
		t.Errorf("want nil, got %v", records)
	}
}

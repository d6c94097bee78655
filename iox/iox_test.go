package iox

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendLogLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	first := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	if err := AppendLogLine(path, first, "cancel:requested"); err != nil {
		t.Fatalf("AppendLogLine: %v", err)
	}
	if err := AppendLogLine(path, first.Add(time.Second), "cancel:term pids=2 signalled=2"); err != nil {
		t.Fatalf("second AppendLogLine: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "2026-08-25T10:00:00Z cancel:requested\n" +
		"2026-08-25T10:00:01Z cancel:term pids=2 signalled=2\n"
	if string(data) != want {
		t.Errorf("log = %q, want %q", data, want)
	}
}

func TestAppendLogLineBadPath(t *testing.T) {
	if err := AppendLogLine(filepath.Join(t.TempDir(), "missing", "audit.log"), time.Now(), "x"); err == nil {
		t.Error("missing directory should fail")
	}
}

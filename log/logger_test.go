package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestWithOutputWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	logger := Nop().WithOutput(&buf)

	logger.Info("worker complete", map[string]any{"spawns_started": 2})

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, line)
	}
	if entry["level"] != "info" || entry["message"] != "worker complete" {
		t.Errorf("entry = %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["spawns_started"] != float64(2) {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestNopDiscards(t *testing.T) {
	logger := Nop()
	logger.Debug("quiet", nil)
	logger.Error("still quiet", map[string]any{"x": 1})
}

func TestSugaredFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := Nop().WithOutput(&buf).Sugar()

	logger.Warnf("run %s retried %d times", "run_a", 3)

	if !strings.Contains(buf.String(), "run run_a retried 3 times") {
		t.Errorf("output = %s", buf.String())
	}
}

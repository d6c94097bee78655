package event

import (
	"reflect"
	"strings"
	"testing"

	"github.com/millrun/mill/types"
)

// allVariants returns one event per payload type.
func allVariants() []*Event {
	result := types.RunResult{
		SchemaVersion: types.SchemaVersion,
		RunID:         "run_a",
		Status:        types.StatusComplete,
		StartedAt:     "2026-08-25T10:00:00Z",
		CompletedAt:   "2026-08-25T10:00:05Z",
		Spawns: []types.SpawnResult{{
			Text:       "driver:hello",
			SessionRef: "session/scout",
			Agent:      "scout",
			Model:      "openai/gpt-5.3-codex",
			Driver:     "test",
		}},
		ProgramResult: "done",
	}
	spawnResult := result.Spawns[0]

	payloads := []Payload{
		RunStartPayload{ProgramPath: "/tmp/program.ts"},
		RunStatusPayload{Status: types.StatusRunning},
		RunCompletePayload{Result: result},
		RunFailedPayload{Message: "boom"},
		RunCancelledPayload{Reason: "operator"},
		SpawnStartPayload{SpawnID: "spawn_1", Input: types.SpawnOptions{
			Agent: "scout", SystemPrompt: "be concise", Prompt: "hello",
		}},
		SpawnMilestonePayload{SpawnID: "spawn_1", Message: "planning"},
		SpawnToolCallPayload{SpawnID: "spawn_1", ToolName: "grep"},
		SpawnErrorPayload{SpawnID: "spawn_1", Message: "driver died"},
		SpawnCompletePayload{SpawnID: "spawn_1", Result: spawnResult},
		SpawnCancelledPayload{SpawnID: "spawn_1", Reason: "run cancelled"},
		ExtensionErrorPayload{ExtensionName: "webhook", Hook: "onEvent", Message: "503"},
	}
	typesByPayload := []Type{
		TypeRunStart, TypeRunStatus, TypeRunComplete, TypeRunFailed,
		TypeRunCancelled, TypeSpawnStart, TypeSpawnMilestone,
		TypeSpawnToolCall, TypeSpawnError, TypeSpawnComplete,
		TypeSpawnCancelled, TypeExtensionError,
	}

	events := make([]*Event, len(payloads))
	for i, p := range payloads {
		events[i] = &Event{
			SchemaVersion: types.SchemaVersion,
			RunID:         "run_a",
			Sequence:      int64(i + 1),
			Timestamp:     "2026-08-25T10:00:00.000000001Z",
			Type:          typesByPayload[i],
			Payload:       p,
		}
	}
	return events
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, original := range allVariants() {
		encoded, err := Encode(original)
		if err != nil {
			t.Fatalf("Encode(%s): %v", original.Type, err)
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%s): %v", original.Type, err)
		}
		if !reflect.DeepEqual(decoded, original) {
			t.Errorf("%s round trip mismatch:\n got %#v\nwant %#v", original.Type, decoded, original)
		}
	}
}

func TestDecodeRejectsUnknownSchemaVersion(t *testing.T) {
	line := `{"schemaVersion":2,"runId":"run_a","sequence":1,"timestamp":"2026-08-25T10:00:00Z","type":"run:start","payload":{"programPath":"/p"}}`
	if _, err := Decode([]byte(line)); err == nil {
		t.Fatal("expected decode failure for schemaVersion 2")
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	line := `{"schemaVersion":1,"runId":"run_a","sequence":1,"timestamp":"2026-08-25T10:00:00Z","type":"run:exploded","payload":{}}`
	_, err := Decode([]byte(line))
	if err == nil {
		t.Fatal("expected decode failure for unknown type")
	}
	if !strings.Contains(err.Error(), "run:exploded") {
		t.Errorf("error should name the unknown type, got: %v", err)
	}
}

func TestDecodeRejectsNonPositiveSequence(t *testing.T) {
	line := `{"schemaVersion":1,"runId":"run_a","sequence":0,"timestamp":"2026-08-25T10:00:00Z","type":"run:start","payload":{"programPath":"/p"}}`
	if _, err := Decode([]byte(line)); err == nil {
		t.Fatal("expected decode failure for sequence 0")
	}
}

func TestSpawnIDExtraction(t *testing.T) {
	for _, ev := range allVariants() {
		want := ""
		if ev.Type.IsSpawnTerminal() || ev.Type == TypeSpawnStart ||
			ev.Type == TypeSpawnMilestone || ev.Type == TypeSpawnToolCall {
			want = "spawn_1"
		}
		if got := ev.SpawnID(); got != want {
			t.Errorf("%s: SpawnID() = %q, want %q", ev.Type, got, want)
		}
	}
}

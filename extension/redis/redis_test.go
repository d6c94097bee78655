package redis

import (
	"encoding/json"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/millrun/mill/event"
	"github.com/millrun/mill/types"
)

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("missing URL should fail")
	}
	if _, err := New(Config{URL: "not a url"}); err == nil {
		t.Error("malformed URL should fail")
	}
	if _, err := New(Config{URL: "redis://localhost:6379", Format: "xml"}); err == nil {
		t.Error("unknown format should fail")
	}
	reg, err := New(Config{URL: "redis://localhost:6379"})
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if reg.Name != "redis" || reg.OnEvent == nil {
		t.Errorf("registration = %+v", reg)
	}
}

func sampleEvent() *event.Event {
	return &event.Event{
		SchemaVersion: types.SchemaVersion,
		RunID:         "run_a",
		Sequence:      3,
		Timestamp:     "2026-08-25T10:00:00Z",
		Type:          event.TypeSpawnComplete,
		Payload: event.SpawnCompletePayload{
			SpawnID: "spawn_1",
			Result:  types.SpawnResult{Text: "hi", SessionRef: "session/scout", Agent: "scout", Model: "m", Driver: "test"},
		},
	}
}

func TestEncodeJSON(t *testing.T) {
	body, err := encode(FormatJSON, sampleEvent())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var wire wireEvent
	if err := json.Unmarshal(body, &wire); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if wire.RunID != "run_a" || wire.Sequence != 3 || wire.Type != "spawn:complete" || wire.SpawnID != "spawn_1" {
		t.Errorf("wire = %+v", wire)
	}

	var payload event.SpawnCompletePayload
	if err := json.Unmarshal(wire.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Result.SessionRef != "session/scout" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestEncodeMsgpack(t *testing.T) {
	body, err := encode(FormatMsgpack, sampleEvent())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var wire wireEvent
	if err := msgpack.Unmarshal(body, &wire); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if wire.RunID != "run_a" || wire.Type != "spawn:complete" || wire.SpawnID != "spawn_1" {
		t.Errorf("wire = %+v", wire)
	}
	if len(wire.Payload) == 0 {
		t.Error("payload missing from msgpack wire")
	}
}

package event

import (
	"encoding/json"
	"fmt"

	"github.com/millrun/mill/types"
)

// envelope is the wire shape of an event line in events.ndjson.
type envelope struct {
	SchemaVersion int             `json:"schemaVersion"`
	RunID         string          `json:"runId"`
	Sequence      int64           `json:"sequence"`
	Timestamp     string          `json:"timestamp"`
	Type          Type            `json:"type"`
	Payload       json.RawMessage `json:"payload"`
}

// Encode serializes an event to a single JSON document (no trailing newline).
func Encode(e *Event) ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("event %s has nil payload", e.Type)
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Type, err)
	}
	return json.Marshal(envelope{
		SchemaVersion: e.SchemaVersion,
		RunID:         e.RunID,
		Sequence:      e.Sequence,
		Timestamp:     e.Timestamp,
		Type:          e.Type,
		Payload:       payload,
	})
}

// Decode parses a single JSON event document.
// Fails on unknown schema versions and unknown event types.
func Decode(data []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if env.SchemaVersion != types.SchemaVersion {
		return nil, fmt.Errorf("unsupported event schemaVersion %d", env.SchemaVersion)
	}
	if env.Sequence <= 0 {
		return nil, fmt.Errorf("event sequence must be positive, got %d", env.Sequence)
	}

	payload, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		SchemaVersion: env.SchemaVersion,
		RunID:         env.RunID,
		Sequence:      env.Sequence,
		Timestamp:     env.Timestamp,
		Type:          env.Type,
		Payload:       payload,
	}, nil
}

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	unmarshal := func(dst any) error {
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decode %s payload: %w", t, err)
		}
		return nil
	}

	switch t {
	case TypeRunStart:
		var p RunStartPayload
		return p, unmarshal(&p)
	case TypeRunStatus:
		var p RunStatusPayload
		return p, unmarshal(&p)
	case TypeRunComplete:
		var p RunCompletePayload
		return p, unmarshal(&p)
	case TypeRunFailed:
		var p RunFailedPayload
		return p, unmarshal(&p)
	case TypeRunCancelled:
		var p RunCancelledPayload
		return p, unmarshal(&p)
	case TypeSpawnStart:
		var p SpawnStartPayload
		return p, unmarshal(&p)
	case TypeSpawnMilestone:
		var p SpawnMilestonePayload
		return p, unmarshal(&p)
	case TypeSpawnToolCall:
		var p SpawnToolCallPayload
		return p, unmarshal(&p)
	case TypeSpawnError:
		var p SpawnErrorPayload
		return p, unmarshal(&p)
	case TypeSpawnComplete:
		var p SpawnCompletePayload
		return p, unmarshal(&p)
	case TypeSpawnCancelled:
		var p SpawnCancelledPayload
		return p, unmarshal(&p)
	case TypeExtensionError:
		var p ExtensionErrorPayload
		return p, unmarshal(&p)
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

// MarshalJSON implements json.Marshaler so events embed cleanly in CLI output.
func (e *Event) MarshalJSON() ([]byte, error) {
	return Encode(e)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*e = *decoded
	return nil
}

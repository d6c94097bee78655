// Package event defines the tier-1 event schema and the lifecycle guard.
//
// MillEvent is a closed discriminated union: a common envelope plus one
// payload type per event type. The union is closed on purpose: decoding an
// unknown type or schema version fails rather than degrading to a generic
// payload.
package event

import (
	"github.com/millrun/mill/types"
)

// Type is the event type discriminator.
type Type string

// Event type constants.
const (
	TypeRunStart       Type = "run:start"
	TypeRunStatus      Type = "run:status"
	TypeRunComplete    Type = "run:complete"
	TypeRunFailed      Type = "run:failed"
	TypeRunCancelled   Type = "run:cancelled"
	TypeSpawnStart     Type = "spawn:start"
	TypeSpawnMilestone Type = "spawn:milestone"
	TypeSpawnToolCall  Type = "spawn:tool_call"
	TypeSpawnError     Type = "spawn:error"
	TypeSpawnComplete  Type = "spawn:complete"
	TypeSpawnCancelled Type = "spawn:cancelled"
	TypeExtensionError Type = "extension:error"
)

// IsRunTerminal returns true for the run-terminal event types.
func (t Type) IsRunTerminal() bool {
	return t == TypeRunComplete || t == TypeRunFailed || t == TypeRunCancelled
}

// IsSpawnTerminal returns true for the spawn-terminal event types.
func (t Type) IsSpawnTerminal() bool {
	return t == TypeSpawnComplete || t == TypeSpawnError || t == TypeSpawnCancelled
}

// TerminalStatus maps a run-terminal event type to its run status.
// Returns "" for non-terminal types.
func (t Type) TerminalStatus() types.RunStatus {
	switch t {
	case TypeRunComplete:
		return types.StatusComplete
	case TypeRunFailed:
		return types.StatusFailed
	case TypeRunCancelled:
		return types.StatusCancelled
	default:
		return ""
	}
}

// Payload is the closed set of event payloads.
type Payload interface {
	isPayload()
}

// RunStartPayload accompanies run:start.
type RunStartPayload struct {
	ProgramPath string `json:"programPath"`
}

// RunStatusPayload accompanies run:status.
type RunStatusPayload struct {
	Status types.RunStatus `json:"status"`
}

// RunCompletePayload accompanies run:complete.
type RunCompletePayload struct {
	Result types.RunResult `json:"result"`
}

// RunFailedPayload accompanies run:failed.
type RunFailedPayload struct {
	Message string `json:"message"`
}

// RunCancelledPayload accompanies run:cancelled.
type RunCancelledPayload struct {
	Reason string `json:"reason,omitempty"`
}

// SpawnStartPayload accompanies spawn:start.
type SpawnStartPayload struct {
	SpawnID string             `json:"spawnId"`
	Input   types.SpawnOptions `json:"input"`
}

// SpawnMilestonePayload accompanies spawn:milestone.
type SpawnMilestonePayload struct {
	SpawnID string `json:"spawnId"`
	Message string `json:"message"`
}

// SpawnToolCallPayload accompanies spawn:tool_call.
type SpawnToolCallPayload struct {
	SpawnID  string `json:"spawnId"`
	ToolName string `json:"toolName"`
}

// SpawnErrorPayload accompanies spawn:error.
type SpawnErrorPayload struct {
	SpawnID string `json:"spawnId"`
	Message string `json:"message"`
}

// SpawnCompletePayload accompanies spawn:complete.
type SpawnCompletePayload struct {
	SpawnID string            `json:"spawnId"`
	Result  types.SpawnResult `json:"result"`
}

// SpawnCancelledPayload accompanies spawn:cancelled.
type SpawnCancelledPayload struct {
	SpawnID string `json:"spawnId"`
	Reason  string `json:"reason,omitempty"`
}

// ExtensionErrorPayload accompanies extension:error.
// Hook is "setup" or "onEvent".
type ExtensionErrorPayload struct {
	ExtensionName string `json:"extensionName"`
	Hook          string `json:"hook"`
	Message       string `json:"message"`
}

func (RunStartPayload) isPayload()       {}
func (RunStatusPayload) isPayload()      {}
func (RunCompletePayload) isPayload()    {}
func (RunFailedPayload) isPayload()      {}
func (RunCancelledPayload) isPayload()   {}
func (SpawnStartPayload) isPayload()     {}
func (SpawnMilestonePayload) isPayload() {}
func (SpawnToolCallPayload) isPayload()  {}
func (SpawnErrorPayload) isPayload()     {}
func (SpawnCompletePayload) isPayload()  {}
func (SpawnCancelledPayload) isPayload() {}
func (ExtensionErrorPayload) isPayload() {}

// Event is the common envelope for all tier-1 events.
type Event struct {
	// SchemaVersion is always types.SchemaVersion for values produced here.
	SchemaVersion int
	// RunID is the canonical run identifier.
	RunID string
	// Sequence is the monotonic sequence number, starts at 1.
	Sequence int64
	// Timestamp is the event timestamp in ISO 8601 UTC format.
	Timestamp string
	// Type is the event type discriminator.
	Type Type
	// Payload is the type-specific payload. Always a value (not pointer)
	// of one of the payload structs above.
	Payload Payload
}

// SpawnID returns the spawn ID carried by a spawn event, or "" for
// run-level and extension events.
func (e *Event) SpawnID() string {
	switch p := e.Payload.(type) {
	case SpawnStartPayload:
		return p.SpawnID
	case SpawnMilestonePayload:
		return p.SpawnID
	case SpawnToolCallPayload:
		return p.SpawnID
	case SpawnErrorPayload:
		return p.SpawnID
	case SpawnCompletePayload:
		return p.SpawnID
	case SpawnCancelledPayload:
		return p.SpawnID
	default:
		return ""
	}
}

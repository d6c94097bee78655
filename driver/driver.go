// Package driver defines the driver capability boundary: the adapter that
// turns one spawn request into one agent invocation.
//
// Vendor-specific output codecs live outside the core. The generic
// subprocess driver in this package speaks a neutral newline-framed JSON
// protocol; anything it cannot parse passes through as raw output.
package driver

import (
	"context"
	"encoding/json"
)

// Request is the input to one driver invocation.
type Request struct {
	RunID        string `json:"runId"`
	RunDirectory string `json:"runDirectory"`
	SpawnID      string `json:"spawnId"`
	Agent        string `json:"agent"`
	SystemPrompt string `json:"systemPrompt"`
	Prompt       string `json:"prompt"`
	Model        string `json:"model"`
}

// EventKind classifies a structured driver event.
type EventKind string

// Structured driver event kinds the engine folds into tier-1 events.
// Unrecognized kinds are ignored by the engine.
const (
	KindMilestone EventKind = "milestone"
	KindToolCall  EventKind = "tool_call"
)

// Event is one structured event emitted by a driver during a spawn.
type Event struct {
	Kind     EventKind `json:"kind"`
	Message  string    `json:"message,omitempty"`
	ToolName string    `json:"toolName,omitempty"`
}

// Output is everything a driver produced for one spawn.
type Output struct {
	// Raw holds unstructured output lines, surfaced as tier-2 I/O.
	Raw []string
	// Events holds structured events in emission order.
	Events []Event
	// Result is the final result document. The engine decodes and
	// validates it against the SpawnResult schema.
	Result json.RawMessage
}

// Driver turns a spawn request into an agent invocation.
type Driver interface {
	Spawn(ctx context.Context, req Request) (*Output, error)
}

// Package host runs the user program in a child process and bridges its
// mill API calls back to the engine.
//
// The wire protocol is newline-framed JSON. Messages from the child arrive
// on stdout prefixed with the Sentinel; any other stdout line is plain
// program output. Responses go back on the child's stdin.
package host

import (
	"encoding/json"
	"fmt"

	"github.com/millrun/mill/types"
)

// Sentinel prefixes every protocol line on the child's stdout.
const Sentinel = "__MILL_HOST__"

// Message kinds (child to parent).
const (
	KindRequest = "request"
	KindResult  = "result"
)

// Request types.
const (
	RequestSpawn     = "spawn"
	RequestExtension = "extension"
)

// ProgramHostError covers a dead bridge process, a malformed protocol
// message, or a nonzero exit without a terminal result.
type ProgramHostError struct {
	RunID   string
	Message string
}

func (e *ProgramHostError) Error() string {
	return fmt.Sprintf("run %s: program host: %s", e.RunID, e.Message)
}

// childMessage is the envelope for every sentinel-prefixed line from the
// child. Fields are populated according to Kind and RequestType.
type childMessage struct {
	Kind string `json:"kind"`

	// Request fields.
	RequestID   string `json:"requestId,omitempty"`
	RequestType string `json:"requestType,omitempty"`
	// Spawn requests.
	Input *types.SpawnOptions `json:"input,omitempty"`
	// Extension requests.
	ExtensionName string `json:"extensionName,omitempty"`
	MethodName    string `json:"methodName,omitempty"`
	Args          []any  `json:"args,omitempty"`

	// Terminal result fields.
	OK      bool            `json:"ok"`
	Value   json.RawMessage `json:"value,omitempty"`
	Message string          `json:"message,omitempty"`
}

// response is the parent-to-child reply, one JSON line on stdin.
type response struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId"`
	OK        bool   `json:"ok"`
	Value     any    `json:"value,omitempty"`
	Message   string `json:"message,omitempty"`
}

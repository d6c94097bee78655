// Package extension defines the extension registration contract.
//
// Extensions observe the run lifecycle and may contribute API methods that
// programs call through the mill global. Hook failures are soft: the engine
// records an extension:error event and continues the run.
package extension

import (
	"context"

	"github.com/millrun/mill/event"
	"github.com/millrun/mill/log"
)

// Hook names used in extension:error payloads.
const (
	HookSetup   = "setup"
	HookOnEvent = "onEvent"
)

// RunContext is the per-run context handed to hooks.
type RunContext struct {
	RunID        string
	RunDirectory string
	Logger       *log.Logger
}

// APIMethod is one program-callable extension method. Arguments arrive as
// decoded JSON values; the returned value is encoded back to the program.
type APIMethod func(ctx context.Context, args []any) (any, error)

// Registration declares one extension.
// All fields except Name are optional.
type Registration struct {
	// Name identifies the extension in events and program calls.
	Name string
	// Setup runs once before run:start.
	Setup func(ctx context.Context, rc RunContext) error
	// OnEvent runs for every tier-1 event except extension:error.
	OnEvent func(ctx context.Context, ev *event.Event, rc RunContext) error
	// API maps method names to program-callable methods.
	API map[string]APIMethod
}

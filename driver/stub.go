package driver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/millrun/mill/types"
)

// StubDriver is a scripted driver for tests and smoke runs. It never talks
// to an agent: the result is synthesized from the request.
type StubDriver struct {
	// Milestones are emitted as structured milestone events, in order.
	Milestones []string
	// ToolCalls are emitted as structured tool_call events, in order.
	ToolCalls []string
	// Raw lines are surfaced as tier-2 driver output.
	Raw []string
	// Err, when set, is returned instead of a result.
	Err error
	// Result, when set, overrides the synthesized result.
	Result *types.SpawnResult
}

// Spawn returns the scripted output.
func (d *StubDriver) Spawn(_ context.Context, req Request) (*Output, error) {
	if d.Err != nil {
		return nil, d.Err
	}

	out := &Output{Raw: append([]string(nil), d.Raw...)}
	for _, m := range d.Milestones {
		out.Events = append(out.Events, Event{Kind: KindMilestone, Message: m})
	}
	for _, t := range d.ToolCalls {
		out.Events = append(out.Events, Event{Kind: KindToolCall, ToolName: t})
	}

	result := d.Result
	if result == nil {
		result = &types.SpawnResult{
			Text:       "driver:" + req.Prompt,
			SessionRef: "session/" + req.Agent,
			Agent:      req.Agent,
			Model:      req.Model,
			Driver:     "test",
			ExitCode:   0,
		}
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("stub driver: encode result: %w", err)
	}
	out.Result = encoded
	return out, nil
}

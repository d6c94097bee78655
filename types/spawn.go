package types

import "errors"

// SpawnOptions is the input to a single mill.spawn(...) call.
type SpawnOptions struct {
	// Agent is the caller-chosen agent label (required).
	Agent string `json:"agent"`
	// SystemPrompt is the system prompt handed to the driver (required).
	SystemPrompt string `json:"systemPrompt"`
	// Prompt is the user prompt (required).
	Prompt string `json:"prompt"`
	// Model overrides the engine default model when non-empty.
	Model string `json:"model,omitempty"`
}

// Validate checks the non-empty field requirements.
func (o *SpawnOptions) Validate() error {
	if o.Agent == "" {
		return errors.New("spawn input missing agent")
	}
	if o.SystemPrompt == "" {
		return errors.New("spawn input missing systemPrompt")
	}
	if o.Prompt == "" {
		return errors.New("spawn input missing prompt")
	}
	return nil
}

// SpawnResult is the final result of one spawn, as returned by the driver.
// SessionRef is an opaque driver-scoped pointer; the core never interprets it.
type SpawnResult struct {
	Text         string `json:"text"`
	SessionRef   string `json:"sessionRef"`
	Agent        string `json:"agent"`
	Model        string `json:"model"`
	Driver       string `json:"driver"`
	ExitCode     int    `json:"exitCode"`
	StopReason   string `json:"stopReason,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Validate checks the non-empty field requirements.
func (r *SpawnResult) Validate() error {
	if r.SessionRef == "" {
		return errors.New("spawn result missing sessionRef")
	}
	if r.Agent == "" {
		return errors.New("spawn result missing agent")
	}
	if r.Model == "" {
		return errors.New("spawn result missing model")
	}
	if r.Driver == "" {
		return errors.New("spawn result missing driver")
	}
	return nil
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/millrun/mill/driver"
	"github.com/millrun/mill/event"
	"github.com/millrun/mill/extension"
	"github.com/millrun/mill/store"
	"github.com/millrun/mill/types"
)

// SpawnFunc is the per-spawn effect handed to the program executor.
type SpawnFunc func(ctx context.Context, input types.SpawnOptions) (*types.SpawnResult, error)

// ExecuteProgramFunc runs the user program, calling spawn for each agent
// invocation, and returns the program's result rendered as a string.
type ExecuteProgramFunc func(ctx context.Context, spawn SpawnFunc) (string, error)

// RunSyncParams holds the inputs to RunSync.
type RunSyncParams struct {
	RunID          string
	ProgramPath    string
	ExecuteProgram ExecuteProgramFunc
	Metadata       map[string]string
}

// RunSyncOutcome is the successful result of RunSync.
type RunSyncOutcome struct {
	Run    *types.RunRecord
	Result *types.RunResult
}

// RunSync drives one run to a terminal state in the calling process.
//
// Safe to call on a run that already finished: the stored outcome is
// returned without re-executing the program. A run with a partial event log
// resumes by seeding the sequence counter, spawn counter, and spawn-results
// accumulator from the log.
func (e *Engine) RunSync(ctx context.Context, params RunSyncParams) (*RunSyncOutcome, error) {
	record, err := e.store.GetRun(params.RunID)
	switch {
	case err == nil && record.Status.IsTerminal():
		result, err := e.store.GetResult(params.RunID)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, fmt.Errorf("run %s is terminal but result.json is missing", params.RunID)
		}
		return &RunSyncOutcome{Run: record, Result: result}, nil
	case err == nil && record.Status == types.StatusPending:
		record, err = e.store.SetStatus(params.RunID, types.StatusRunning, e.clock())
		if err != nil {
			return nil, err
		}
	case err != nil && store.IsRunNotFound(err):
		record, err = e.store.Create(store.CreateParams{
			RunID:       params.RunID,
			ProgramPath: params.ProgramPath,
			Driver:      e.driverName,
			Executor:    e.executorName,
			Status:      types.StatusRunning,
			Metadata:    params.Metadata,
			Timestamp:   e.clock(),
		})
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	rs := e.stateFor(params.RunID)
	persisted, err := e.store.ReadEvents(params.RunID)
	if err != nil {
		return nil, err
	}
	if _, err := event.Replay(persisted); err != nil {
		return nil, err
	}
	rs.mu.Lock()
	rs.spawnCounter = 0
	rs.spawns = nil
	for _, ev := range persisted {
		switch p := ev.Payload.(type) {
		case event.SpawnStartPayload:
			rs.spawnCounter++
		case event.SpawnCompletePayload:
			rs.spawns = append(rs.spawns, p.Result)
		}
	}
	rs.mu.Unlock()

	if len(persisted) == 0 {
		e.runSetupHooks(ctx, rs, params.RunID)
		if _, err := e.emit(ctx, rs, params.RunID, event.TypeRunStart, event.RunStartPayload{ProgramPath: record.ProgramPath}); err != nil {
			return nil, err
		}
		if _, err := e.emit(ctx, rs, params.RunID, event.TypeRunStatus, event.RunStatusPayload{Status: types.StatusRunning}); err != nil {
			return nil, err
		}
	}

	value, progErr := params.ExecuteProgram(ctx, e.spawnEffect(rs, record))
	if progErr != nil {
		return nil, e.finalizeFailed(ctx, rs, record, progErr)
	}
	return e.finalizeComplete(ctx, rs, record, value)
}

func (e *Engine) runSetupHooks(ctx context.Context, rs *runState, runID string) {
	rc := e.runContext(runID)
	for _, ext := range e.extensions {
		if ext.Setup == nil {
			continue
		}
		if err := ext.Setup(ctx, rc); err != nil {
			e.recordExtensionError(ctx, rs, runID, ext.Name, extension.HookSetup, err)
		}
	}
}

func (e *Engine) finalizeComplete(ctx context.Context, rs *runState, record *types.RunRecord, programResult string) (*RunSyncOutcome, error) {
	rs.mu.Lock()
	spawns := append([]types.SpawnResult(nil), rs.spawns...)
	rs.mu.Unlock()

	result := &types.RunResult{
		SchemaVersion: types.SchemaVersion,
		RunID:         record.ID,
		Status:        types.StatusComplete,
		StartedAt:     record.CreatedAt,
		CompletedAt:   types.FormatTimestamp(e.clock()),
		Spawns:        spawns,
		ProgramResult: programResult,
	}
	if _, err := e.emit(ctx, rs, record.ID, event.TypeRunComplete, event.RunCompletePayload{Result: *result}); err != nil {
		return e.resolveFinalizeRace(record.ID, err)
	}
	run, err := e.store.SetResult(record.ID, result, e.clock())
	if err != nil {
		return nil, err
	}
	return &RunSyncOutcome{Run: run, Result: result}, nil
}

func (e *Engine) finalizeFailed(ctx context.Context, rs *runState, record *types.RunRecord, progErr error) error {
	execErr := asProgramExecutionError(record.ID, progErr)

	rs.mu.Lock()
	spawns := append([]types.SpawnResult(nil), rs.spawns...)
	rs.mu.Unlock()

	result := &types.RunResult{
		SchemaVersion: types.SchemaVersion,
		RunID:         record.ID,
		Status:        types.StatusFailed,
		StartedAt:     record.CreatedAt,
		CompletedAt:   types.FormatTimestamp(e.clock()),
		Spawns:        spawns,
		ErrorMessage:  execErr.Message,
	}
	if _, err := e.emit(ctx, rs, record.ID, event.TypeRunFailed, event.RunFailedPayload{Message: execErr.Message}); err != nil {
		// Another path (cancel) finalized first; its terminal stands.
		if isLifecycleRejection(err) {
			return execErr
		}
		return err
	}
	if _, err := e.store.SetResult(record.ID, result, e.clock()); err != nil {
		return err
	}
	return execErr
}

// resolveFinalizeRace handles a run:complete rejected by the guard because a
// concurrent cancel already terminated the run. The stored state wins.
func (e *Engine) resolveFinalizeRace(runID string, emitErr error) (*RunSyncOutcome, error) {
	if !isLifecycleRejection(emitErr) {
		return nil, emitErr
	}
	run, err := e.store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	result, err := e.store.GetResult(runID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &types.RunResult{
			SchemaVersion: types.SchemaVersion,
			RunID:         runID,
			Status:        run.Status,
			StartedAt:     run.CreatedAt,
			CompletedAt:   run.UpdatedAt,
		}
	}
	return &RunSyncOutcome{Run: run, Result: result}, nil
}

func isLifecycleRejection(err error) bool {
	var lifecycleErr *event.LifecycleInvariantError
	return asErr(err, &lifecycleErr)
}

func asProgramExecutionError(runID string, err error) *ProgramExecutionError {
	var execErr *ProgramExecutionError
	if asErr(err, &execErr) {
		return execErr
	}
	return &ProgramExecutionError{RunID: runID, Message: prettyCause(err)}
}

// spawnEffect builds the SpawnFunc bound to one run.
func (e *Engine) spawnEffect(rs *runState, record *types.RunRecord) SpawnFunc {
	return func(ctx context.Context, input types.SpawnOptions) (*types.SpawnResult, error) {
		if err := input.Validate(); err != nil {
			return nil, &ProgramExecutionError{RunID: record.ID, Message: prettyCause(err)}
		}

		rs.mu.Lock()
		rs.spawnCounter++
		spawnID := fmt.Sprintf("spawn_%d", rs.spawnCounter)
		rs.mu.Unlock()

		if _, err := e.emit(ctx, rs, record.ID, event.TypeSpawnStart, event.SpawnStartPayload{SpawnID: spawnID, Input: input}); err != nil {
			return nil, err
		}
		e.collector.IncSpawnsStarted()

		model := input.Model
		if model == "" {
			model = e.defaultModel
		}
		output, err := e.driver.Spawn(ctx, driver.Request{
			RunID:        record.ID,
			RunDirectory: record.Paths.RunDir,
			SpawnID:      spawnID,
			Agent:        input.Agent,
			SystemPrompt: input.SystemPrompt,
			Prompt:       input.Prompt,
			Model:        model,
		})
		if err != nil {
			return nil, e.failSpawn(ctx, rs, record.ID, spawnID, err)
		}

		for _, line := range output.Raw {
			e.hub.PublishIo(&event.IoStreamEvent{
				RunID:     record.ID,
				Source:    event.IoSourceDriver,
				Stream:    event.IoStreamStdout,
				Line:      line,
				Timestamp: types.FormatTimestamp(e.clock()),
				SpawnID:   spawnID,
			})
		}
		e.collector.AddIoLines(int64(len(output.Raw)))

		for _, dev := range output.Events {
			switch dev.Kind {
			case driver.KindMilestone:
				if _, err := e.emit(ctx, rs, record.ID, event.TypeSpawnMilestone, event.SpawnMilestonePayload{SpawnID: spawnID, Message: dev.Message}); err != nil {
					return nil, err
				}
			case driver.KindToolCall:
				if _, err := e.emit(ctx, rs, record.ID, event.TypeSpawnToolCall, event.SpawnToolCallPayload{SpawnID: spawnID, ToolName: dev.ToolName}); err != nil {
					return nil, err
				}
			}
		}

		var result types.SpawnResult
		if err := json.Unmarshal(output.Result, &result); err != nil {
			return nil, e.failSpawn(ctx, rs, record.ID, spawnID, fmt.Errorf("decode spawn result: %w", err))
		}
		if err := result.Validate(); err != nil {
			return nil, e.failSpawn(ctx, rs, record.ID, spawnID, fmt.Errorf("invalid spawn result: %w", err))
		}

		if _, err := e.emit(ctx, rs, record.ID, event.TypeSpawnComplete, event.SpawnCompletePayload{SpawnID: spawnID, Result: result}); err != nil {
			return nil, err
		}
		e.collector.IncSpawnsCompleted()

		rs.mu.Lock()
		rs.spawns = append(rs.spawns, result)
		rs.mu.Unlock()

		return &result, nil
	}
}

// failSpawn records spawn:error and maps the cause to ProgramExecutionError.
func (e *Engine) failSpawn(ctx context.Context, rs *runState, runID, spawnID string, cause error) error {
	e.collector.IncSpawnsFailed()
	message := prettyCause(cause)
	if _, err := e.emit(ctx, rs, runID, event.TypeSpawnError, event.SpawnErrorPayload{SpawnID: spawnID, Message: message}); err != nil {
		e.logger.Warn("dropping spawn:error event", map[string]any{
			"spawn_id": spawnID,
			"error":    err.Error(),
		})
	}
	return &ProgramExecutionError{RunID: runID, Message: message}
}

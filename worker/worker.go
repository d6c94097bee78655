// Package worker is the entry point of the detached child process that owns
// one run. It writes worker.pid, drives the run to a terminal state through
// the engine and the program host bridge, and records progress in
// logs/worker.log.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/millrun/mill/driver"
	"github.com/millrun/mill/engine"
	"github.com/millrun/mill/executor"
	"github.com/millrun/mill/extension"
	"github.com/millrun/mill/host"
	"github.com/millrun/mill/hub"
	"github.com/millrun/mill/log"
	"github.com/millrun/mill/metrics"
	"github.com/millrun/mill/types"
)

// PidFileName is the worker pidfile inside the run directory.
const PidFileName = "worker.pid"

// LogsDirName and WorkerLogName locate the worker's text log.
const (
	LogsDirName   = "logs"
	WorkerLogName = "worker.log"
)

// Params configures one worker invocation.
type Params struct {
	RunID         string
	ProgramPath   string
	RunsDirectory string
	DriverName    string
	ExecutorName  string
	DefaultModel  string
	Driver        driver.Driver
	Executor      executor.Runtime
	Extensions    []*extension.Registration
	Metadata      map[string]string

	// Pid defaults to os.Getpid. Injected for tests.
	Pid int
	// Logger defaults to a run-scoped stderr logger.
	Logger *log.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Run executes one run to completion. Idempotent: a run that is already
// terminal is returned from the store without re-invoking the program.
func Run(ctx context.Context, params Params) (*engine.RunSyncOutcome, error) {
	if params.Pid == 0 {
		params.Pid = os.Getpid()
	}
	if params.Logger == nil {
		params.Logger = log.NewLogger(params.RunID)
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}

	paths := types.DeriveRunPaths(params.RunsDirectory, params.RunID)
	logsDir := filepath.Join(paths.RunDir, LogsDirName)
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}
	workerLog := newRunLog(filepath.Join(logsDir, WorkerLogName), params.Clock, params.Logger)

	pidPath := filepath.Join(paths.RunDir, PidFileName)
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", params.Pid)), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", PidFileName, err)
	}
	defer func() {
		if err := os.Remove(pidPath); err != nil && !os.IsNotExist(err) {
			params.Logger.Warn("remove worker pidfile", map[string]any{"error": err.Error()})
		}
	}()

	collector := metrics.NewCollector(params.RunID, params.DriverName, params.ExecutorName)
	eng, err := engine.New(engine.Options{
		RunsDirectory: params.RunsDirectory,
		DriverName:    params.DriverName,
		ExecutorName:  params.ExecutorName,
		DefaultModel:  params.DefaultModel,
		Driver:        params.Driver,
		Extensions:    params.Extensions,
		Hub:           hub.New(),
		Logger:        params.Logger,
		Clock:         params.Clock,
		Collector:     collector,
	})
	if err != nil {
		return nil, err
	}

	record, err := eng.Submit(engine.SubmitParams{
		RunID:       params.RunID,
		ProgramPath: params.ProgramPath,
		Metadata:    params.Metadata,
	})
	if err != nil {
		return nil, err
	}
	if record.Status.IsTerminal() {
		workerLog.append("worker:terminal-noop")
		result, err := eng.Result(params.RunID)
		if err != nil {
			return nil, err
		}
		// A run cancelled before it started has no result.json; any other
		// terminal run without one indicates a torn finalization.
		if result == nil && record.Status != types.StatusCancelled {
			return nil, fmt.Errorf("run %s is terminal but result.json is missing", params.RunID)
		}
		return &engine.RunSyncOutcome{Run: record, Result: result}, nil
	}

	outcome, err := eng.RunSync(ctx, engine.RunSyncParams{
		RunID:          params.RunID,
		ProgramPath:    params.ProgramPath,
		ExecuteProgram: executeProgram(params, eng),
		Metadata:       params.Metadata,
	})
	if err != nil {
		workerLog.append("worker:failed " + err.Error())
		params.Logger.Error("worker failed", collector.Snapshot().Fields())
		return nil, err
	}

	workerLog.append("worker:complete")
	params.Logger.Info("worker complete", collector.Snapshot().Fields())
	return outcome, nil
}

// executeProgram builds the ExecuteProgramFunc backed by the program host
// bridge running under the configured executor.
func executeProgram(params Params, eng *engine.Engine) engine.ExecuteProgramFunc {
	paths := types.DeriveRunPaths(params.RunsDirectory, params.RunID)
	return func(ctx context.Context, spawn engine.SpawnFunc) (string, error) {
		bridge := &host.Bridge{
			RunID:        params.RunID,
			RunDirectory: paths.RunDir,
			ExecutorName: params.ExecutorName,
			ProgramPath:  params.ProgramPath,
			Runtime:      params.Executor,
			Extensions:   params.Extensions,
			Hub:          eng.Hub(),
			Logger:       params.Logger,
			Clock:        params.Clock,
			Spawn:        host.SpawnFunc(spawn),
			ResolveAPI:   eng.ExtensionAPI,
		}
		return bridge.Execute(ctx)
	}
}

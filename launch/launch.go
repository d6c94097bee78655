// Package launch is the submission façade: it allocates run IDs, prepares
// the run directory, enforces the recursion guard, and starts or kills the
// detached worker process.
package launch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/millrun/mill/config"
	"github.com/millrun/mill/engine"
	"github.com/millrun/mill/iox"
	"github.com/millrun/mill/log"
	"github.com/millrun/mill/types"
	"github.com/millrun/mill/worker"
)

// ProgramFileName is the program copy inside the run directory.
const ProgramFileName = "program.ts"

// CancelLogName is the cancel audit log under logs/.
const CancelLogName = "cancel.log"

// WorkerSpec carries everything the worker launcher needs.
type WorkerSpec struct {
	RunID         string
	ProgramPath   string
	RunsDirectory string
	DriverName    string
	ExecutorName  string
	// Depth is the recursion depth to propagate to the worker.
	Depth int
	// LogPath receives the worker's stdout and stderr.
	LogPath string
}

// LaunchWorkerFunc starts the detached worker for a submitted run.
type LaunchWorkerFunc func(ctx context.Context, spec WorkerSpec) error

// Launcher submits and cancels runs against one engine.
type Launcher struct {
	// Engine performs record creation and cancellation (required).
	Engine *engine.Engine
	// RunsDirectory roots the run store (required).
	RunsDirectory string
	DriverName    string
	ExecutorName  string
	// MaxRunDepth bounds nested submission; zero means the default.
	MaxRunDepth int
	// Depth is the observed recursion depth of this process.
	Depth int
	// LaunchWorker defaults to the detached self-exec launcher.
	LaunchWorker LaunchWorkerFunc
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Submission is the result of SubmitRun.
type Submission struct {
	Run *types.RunRecord
	// ProgramCopy is the path of the program copied into the run directory.
	ProgramCopy string
}

func (l *Launcher) clock() time.Time {
	if l.Clock == nil {
		return time.Now()
	}
	return l.Clock()
}

func (l *Launcher) logger() *log.Logger {
	if l.Logger == nil {
		return log.Nop()
	}
	return l.Logger
}

// SubmitRun allocates a fresh run, copies the program into the run
// directory, and launches the detached worker.
func (l *Launcher) SubmitRun(ctx context.Context, programPath string, metadata map[string]string) (*Submission, error) {
	maxDepth := l.MaxRunDepth
	if maxDepth == 0 {
		maxDepth = config.DefaultMaxRunDepth
	}
	if l.Depth >= maxDepth {
		return nil, &config.ConfigError{
			Message: fmt.Sprintf("run depth %d exceeds max_run_depth %d", l.Depth, maxDepth),
		}
	}

	absProgram, err := filepath.Abs(programPath)
	if err != nil {
		return nil, fmt.Errorf("resolve program path: %w", err)
	}
	if _, err := os.Stat(absProgram); err != nil {
		return nil, fmt.Errorf("program %s: %w", absProgram, err)
	}

	runID := "run_" + uuid.NewString()
	record, err := l.Engine.Submit(engine.SubmitParams{
		RunID:       runID,
		ProgramPath: absProgram,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}

	paths := types.DeriveRunPaths(l.RunsDirectory, runID)
	programCopy := filepath.Join(paths.RunDir, ProgramFileName)
	if err := copyFile(absProgram, programCopy); err != nil {
		return nil, fmt.Errorf("copy program: %w", err)
	}

	logsDir := filepath.Join(paths.RunDir, worker.LogsDirName)
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}
	workerLogPath := filepath.Join(logsDir, worker.WorkerLogName)
	if err := touchFile(workerLogPath); err != nil {
		return nil, fmt.Errorf("touch worker log: %w", err)
	}

	launchWorker := l.LaunchWorker
	if launchWorker == nil {
		launchWorker = DetachedWorker
	}
	spec := WorkerSpec{
		RunID:         runID,
		ProgramPath:   programCopy,
		RunsDirectory: l.RunsDirectory,
		DriverName:    l.DriverName,
		ExecutorName:  l.ExecutorName,
		Depth:         l.Depth + 1,
		LogPath:       workerLogPath,
	}
	if err := launchWorker(ctx, spec); err != nil {
		return nil, fmt.Errorf("launch worker: %w", err)
	}

	l.logger().Info("run submitted", map[string]any{
		"run_id":  runID,
		"program": absProgram,
	})
	return &Submission{Run: record, ProgramCopy: programCopy}, nil
}

// DetachedWorker is the default launcher: it re-executes the current binary
// as `_worker` in a new session, with the recursion depth propagated via
// the environment.
func DetachedWorker(ctx context.Context, spec WorkerSpec) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open worker log: %w", err)
	}
	defer iox.DiscardClose(logFile)

	cmd := exec.Command(self, "_worker",
		"--run-id", spec.RunID,
		"--program", spec.ProgramPath,
		"--runs-dir", spec.RunsDirectory,
		"--driver", spec.DriverName,
		"--executor", spec.ExecutorName,
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s", config.DepthEnv, strconv.Itoa(spec.Depth)))
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	return cmd.Process.Release()
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func touchFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	iox.DiscardClose(f)
	return nil
}

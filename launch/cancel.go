package launch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/millrun/mill/engine"
	"github.com/millrun/mill/iox"
	"github.com/millrun/mill/types"
	"github.com/millrun/mill/worker"
)

// killGrace is the delay between SIGTERM and SIGKILL.
const killGrace = 400 * time.Millisecond

// CancelRun cancels the run record and then kills the worker process tree,
// if one is still running. Every step is logged to logs/cancel.log. The
// worker pid is verified against its command line before signalling so a
// stale pidfile never kills an unrelated process.
func (l *Launcher) CancelRun(ctx context.Context, runID, reason string) (*engine.CancelOutcome, error) {
	outcome, err := l.Engine.Cancel(ctx, runID, reason)
	if err != nil {
		return nil, err
	}

	paths := types.DeriveRunPaths(l.RunsDirectory, runID)
	logPath := filepath.Join(paths.RunDir, worker.LogsDirName, CancelLogName)
	logLine := func(message string) {
		_ = os.MkdirAll(filepath.Dir(logPath), 0o755)
		if err := iox.AppendLogLine(logPath, l.clock(), message); err != nil {
			l.logger().Warn("append cancel log", map[string]any{"error": err.Error()})
		}
	}
	logLine(fmt.Sprintf("cancel:requested reason=%q alreadyTerminal=%t", reason, outcome.AlreadyTerminal))

	pidPath := filepath.Join(paths.RunDir, worker.PidFileName)
	pid, err := readPidFile(pidPath)
	if err != nil {
		logLine("cancel:kill skipped reason=no-worker-pid")
		return outcome, nil
	}

	if !processAlive(pid) {
		logLine(fmt.Sprintf("cancel:kill skipped reason=worker-dead pid=%d", pid))
		if err := os.Remove(pidPath); err != nil && !os.IsNotExist(err) {
			l.logger().Warn("remove worker pidfile", map[string]any{"error": err.Error()})
		}
		return outcome, nil
	}
	if !l.verifyWorkerPid(pid, runID) {
		logLine(fmt.Sprintf("cancel:kill skipped pid-mismatch pid=%d", pid))
		return outcome, nil
	}

	tree := append(descendants(pid), pid)
	sent := signalAll(tree, syscall.SIGTERM)
	logLine(fmt.Sprintf("cancel:term pids=%d signalled=%d", len(tree), sent))

	time.Sleep(killGrace)

	if alive := survivors(tree); len(alive) > 0 {
		killed := signalAll(alive, syscall.SIGKILL)
		logLine(fmt.Sprintf("cancel:kill survivors=%d signalled=%d", len(alive), killed))
	}

	if !processAlive(pid) {
		if err := os.Remove(pidPath); err != nil && !os.IsNotExist(err) {
			l.logger().Warn("remove worker pidfile", map[string]any{"error": err.Error()})
		} else {
			logLine("cancel:pidfile removed")
		}
	}
	return outcome, nil
}

// verifyWorkerPid confirms the process table entry looks like the worker
// for this run.
func (l *Launcher) verifyWorkerPid(pid int, runID string) bool {
	cmdline, err := commandLine(pid)
	if err != nil {
		return false
	}
	return strings.Contains(cmdline, "_worker") &&
		strings.Contains(cmdline, "--run-id "+runID)
}

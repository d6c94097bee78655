// Package executor defines the executor capability: how the generated
// program host file is launched as a child process.
//
// Executors are orthogonal to drivers: the executor runs the user's
// orchestration code, the driver runs agents on its behalf.
package executor

import (
	"context"
	"fmt"
	"os/exec"
)

// Runtime builds the command that runs a program host file.
type Runtime interface {
	// HostCommand returns an unstarted command for the host file at
	// hostPath. The caller owns pipes and lifecycle.
	HostCommand(ctx context.Context, hostPath string) (*exec.Cmd, error)
}

// Local runs the program host with a configured local interpreter argv,
// e.g. ["bun", "run"] or ["node", "--experimental-strip-types"].
type Local struct {
	// Name labels the executor in errors.
	Name string
	// Command is the interpreter argv; the host path is appended.
	Command []string
}

// HostCommand implements Runtime.
func (l *Local) HostCommand(ctx context.Context, hostPath string) (*exec.Cmd, error) {
	if len(l.Command) == 0 {
		return nil, fmt.Errorf("executor %s: empty command", l.Name)
	}
	args := append(append([]string(nil), l.Command[1:]...), hostPath)
	return exec.CommandContext(ctx, l.Command[0], args...), nil
}

package driver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/millrun/mill/iox"
)

// SubprocessDriver is the generic adapter over a local subprocess.
//
// The configured argv is launched once per spawn. The request is written as
// one JSON line on the child's stdin; the child answers with newline-framed
// JSON on stdout:
//
//	{"kind":"milestone","message":...}
//	{"kind":"tool_call","toolName":...}
//	{"kind":"result","result":{...SpawnResult...}}
//
// Stdout lines that do not parse as JSON objects pass through as raw
// output. Stderr is captured for failure diagnostics only.
type SubprocessDriver struct {
	// Name labels the driver in errors.
	Name string
	// Command is the argv to launch (required, at least one element).
	Command []string
}

// resultLine is the terminal stdout line of a driver subprocess.
type resultLine struct {
	Kind   string          `json:"kind"`
	Result json.RawMessage `json:"result"`
}

// Spawn runs the configured command for one spawn request.
func (d *SubprocessDriver) Spawn(ctx context.Context, req Request) (*Output, error) {
	if len(d.Command) == 0 {
		return nil, fmt.Errorf("driver %s: empty command", d.Name)
	}

	cmd := exec.CommandContext(ctx, d.Command[0], d.Command[1:]...)
	cmd.Dir = req.RunDirectory

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("driver %s: stdin pipe: %w", d.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("driver %s: stdout pipe: %w", d.Name, err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("driver %s: start: %w", d.Name, err)
	}

	if err := json.NewEncoder(stdin).Encode(req); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("driver %s: write request: %w", d.Name, err)
	}
	iox.DiscardClose(stdin)

	out := &Output{}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "{") {
			out.Raw = append(out.Raw, line)
			continue
		}

		var probe struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal([]byte(trimmed), &probe); err != nil || probe.Kind == "" {
			out.Raw = append(out.Raw, line)
			continue
		}

		switch probe.Kind {
		case "result":
			var rl resultLine
			if err := json.Unmarshal([]byte(trimmed), &rl); err != nil {
				return nil, fmt.Errorf("driver %s: malformed result line: %w", d.Name, err)
			}
			out.Result = rl.Result
		default:
			var ev Event
			if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
				out.Raw = append(out.Raw, line)
				continue
			}
			out.Events = append(out.Events, ev)
		}
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	exitCode := exitCodeOf(waitErr)

	if scanErr != nil {
		return nil, fmt.Errorf("driver %s: read output: %w", d.Name, scanErr)
	}
	if waitErr != nil && exitCode < 0 {
		return nil, fmt.Errorf("driver %s: wait: %w", d.Name, waitErr)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("driver %s: exited with code %d%s", d.Name, exitCode, stderrContext(stderr.String()))
	}
	if out.Result == nil {
		return nil, fmt.Errorf("driver %s: no result line before exit%s", d.Name, stderrContext(stderr.String()))
	}
	return out, nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus()
		}
	}
	return -1
}

func stderrContext(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return ""
	}
	return "; stderr: " + stderr
}

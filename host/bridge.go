package host

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/millrun/mill/event"
	"github.com/millrun/mill/executor"
	"github.com/millrun/mill/extension"
	"github.com/millrun/mill/hub"
	"github.com/millrun/mill/iox"
	"github.com/millrun/mill/log"
	"github.com/millrun/mill/types"
)

// maxLineBytes bounds one protocol or output line from the child.
const maxLineBytes = 16 * 1024 * 1024

// maxStderrLines bounds the stderr tail kept for failure diagnostics.
const maxStderrLines = 100

// SpawnFunc is the per-spawn effect the bridge dispatches spawn requests to.
type SpawnFunc func(ctx context.Context, input types.SpawnOptions) (*types.SpawnResult, error)

// APIResolver resolves a program-callable extension method by name.
type APIResolver func(extensionName, methodName string) (extension.APIMethod, error)

// Bridge launches the generated program host as a child process and serves
// its requests until the child reports a terminal result.
type Bridge struct {
	RunID        string
	RunDirectory string
	ExecutorName string
	ProgramPath  string
	Runtime      executor.Runtime
	Extensions   []*extension.Registration
	Hub          *hub.Hub
	Logger       *log.Logger
	Clock        func() time.Time
	Spawn        SpawnFunc
	ResolveAPI   APIResolver
}

// Execute writes the host files, runs the child to completion, and returns
// the program's result rendered as a string.
func (b *Bridge) Execute(ctx context.Context) (string, error) {
	if b.Clock == nil {
		b.Clock = time.Now
	}
	if b.Logger == nil {
		b.Logger = log.Nop()
	}

	hostPath, err := WriteHostFiles(b.RunDirectory, b.RunID, b.ExecutorName, b.ProgramPath, b.Extensions)
	if err != nil {
		return "", err
	}

	cmd, err := b.Runtime.HostCommand(ctx, hostPath)
	if err != nil {
		return "", &ProgramHostError{RunID: b.RunID, Message: prettyCause(err)}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", &ProgramHostError{RunID: b.RunID, Message: fmt.Sprintf("stdin pipe: %v", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", &ProgramHostError{RunID: b.RunID, Message: fmt.Sprintf("stdout pipe: %v", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", &ProgramHostError{RunID: b.RunID, Message: fmt.Sprintf("stderr pipe: %v", err)}
	}

	if err := cmd.Start(); err != nil {
		return "", &ProgramHostError{RunID: b.RunID, Message: fmt.Sprintf("start host: %v", err)}
	}
	b.Logger.Debug("program host started", map[string]any{"host_path": hostPath, "pid": cmd.Process.Pid})

	session := &bridgeSession{bridge: b, stdin: stdin}

	var stderrDone sync.WaitGroup
	stderrDone.Add(1)
	go func() {
		defer stderrDone.Done()
		session.readStderr(stderr)
	}()

	terminal, protoErr := session.readStdout(ctx, stdout)

	session.dispatches.Wait()
	iox.DiscardClose(stdin)
	stderrDone.Wait()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return "", &ProgramHostError{RunID: b.RunID, Message: fmt.Sprintf("wait host: %v", err)}
		}
	}

	return b.resolveOutcome(terminal, protoErr, exitCode, session.stderrTail())
}

// resolveOutcome applies the termination rules to the child's terminal
// message, exit code, and buffered stderr.
func (b *Bridge) resolveOutcome(terminal *childMessage, protoErr error, exitCode int, stderrTail string) (string, error) {
	switch {
	case protoErr != nil:
		return "", &ProgramHostError{RunID: b.RunID, Message: withStderr(prettyCause(protoErr), stderrTail)}
	case terminal != nil && !terminal.OK:
		return "", &ProgramHostError{RunID: b.RunID, Message: withStderr(terminal.Message, stderrTail)}
	case terminal == nil && exitCode != 0:
		return "", &ProgramHostError{RunID: b.RunID, Message: withStderr(fmt.Sprintf("exited with code %d", exitCode), stderrTail)}
	case terminal == nil:
		return "", &ProgramHostError{RunID: b.RunID, Message: withStderr("exited without a result", stderrTail)}
	case exitCode != 0:
		return "", &ProgramHostError{RunID: b.RunID, Message: withStderr(fmt.Sprintf("exited with code %d", exitCode), stderrTail)}
	default:
		return renderValue(terminal.Value), nil
	}
}

// renderValue turns the program's result value into the programResult
// string: JSON strings are unwrapped, everything else stays JSON-encoded.
func renderValue(value json.RawMessage) string {
	if len(value) == 0 || string(value) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	return string(value)
}

func withStderr(message, stderrTail string) string {
	if stderrTail == "" {
		return message
	}
	return message + "\nstderr:\n" + stderrTail
}

func prettyCause(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// bridgeSession is the mutable state of one child process session.
type bridgeSession struct {
	bridge *Bridge

	writeMu sync.Mutex
	stdin   io.WriteCloser

	dispatches sync.WaitGroup

	stderrMu    sync.Mutex
	stderrLines []string
}

// readStdout consumes the child's stdout until EOF. Sentinel lines are
// protocol messages; everything else is program output. Returns the
// terminal result message, if any, and the first protocol error.
func (s *bridgeSession) readStdout(ctx context.Context, stdout io.Reader) (*childMessage, error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var terminal *childMessage
	var protoErr error
	for scanner.Scan() {
		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, Sentinel)
		if !ok {
			s.publishIo(event.IoStreamStdout, line)
			continue
		}

		var msg childMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			if protoErr == nil {
				protoErr = fmt.Errorf("malformed protocol message: %v", err)
			}
			continue
		}
		switch msg.Kind {
		case KindRequest:
			s.dispatches.Add(1)
			go func(msg childMessage) {
				defer s.dispatches.Done()
				s.dispatch(ctx, &msg)
			}(msg)
		case KindResult:
			if terminal == nil {
				m := msg
				terminal = &m
			}
		default:
			if protoErr == nil {
				protoErr = fmt.Errorf("unknown protocol message kind %q", msg.Kind)
			}
		}
	}
	if err := scanner.Err(); err != nil && protoErr == nil {
		protoErr = fmt.Errorf("read host stdout: %v", err)
	}
	return terminal, protoErr
}

// dispatch serves one request and writes the response line.
func (s *bridgeSession) dispatch(ctx context.Context, msg *childMessage) {
	resp := response{Kind: "response", RequestID: msg.RequestID}

	switch msg.RequestType {
	case RequestSpawn:
		if msg.Input == nil {
			resp.Message = "spawn request missing input"
		} else if result, err := s.bridge.Spawn(ctx, *msg.Input); err != nil {
			resp.Message = prettyCause(err)
		} else {
			resp.OK = true
			resp.Value = result
		}
	case RequestExtension:
		method, err := s.bridge.ResolveAPI(msg.ExtensionName, msg.MethodName)
		if err != nil {
			resp.Message = fmt.Sprintf("Unknown extension api %s.%s", msg.ExtensionName, msg.MethodName)
		} else if value, err := method(ctx, msg.Args); err != nil {
			resp.Message = prettyCause(err)
		} else {
			resp.OK = true
			resp.Value = value
		}
	default:
		resp.Message = fmt.Sprintf("unknown request type %q", msg.RequestType)
	}

	if err := s.writeResponse(&resp); err != nil {
		s.bridge.Logger.Warn("dropping host response", map[string]any{
			"request_id": msg.RequestID,
			"error":      err.Error(),
		})
	}
}

func (s *bridgeSession) writeResponse(resp *response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.stdin.Write(append(data, '\n'))
	return err
}

// readStderr forwards stderr lines as tier-2 I/O and keeps a bounded tail
// for failure diagnostics.
func (s *bridgeSession) readStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		s.publishIo(event.IoStreamStderr, line)

		s.stderrMu.Lock()
		s.stderrLines = append(s.stderrLines, line)
		if len(s.stderrLines) > maxStderrLines {
			s.stderrLines = s.stderrLines[1:]
		}
		s.stderrMu.Unlock()
	}
}

func (s *bridgeSession) stderrTail() string {
	s.stderrMu.Lock()
	defer s.stderrMu.Unlock()
	return strings.Join(s.stderrLines, "\n")
}

func (s *bridgeSession) publishIo(stream event.IoStream, line string) {
	if s.bridge.Hub == nil {
		return
	}
	s.bridge.Hub.PublishIo(&event.IoStreamEvent{
		RunID:     s.bridge.RunID,
		Source:    event.IoSourceProgram,
		Stream:    stream,
		Line:      line,
		Timestamp: types.FormatTimestamp(s.bridge.Clock()),
	})
}

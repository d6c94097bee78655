// Package engine implements the run lifecycle: submit, run-sync, status,
// wait, watch, inspect, and cancel.
//
// The engine owns the per-run sequence counter, lifecycle guard state, and
// spawn counter. Every tier-1 write funnels through one helper that re-reads
// the persisted log, re-derives the guard, allocates the next sequence,
// appends, publishes to the hub, and fans out to extension hooks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/millrun/mill/driver"
	"github.com/millrun/mill/event"
	"github.com/millrun/mill/extension"
	"github.com/millrun/mill/hub"
	"github.com/millrun/mill/log"
	"github.com/millrun/mill/metrics"
	"github.com/millrun/mill/store"
	"github.com/millrun/mill/types"
)

// pollInterval is the fixed delay between event log polls used by Wait and
// cross-process Watch.
const pollInterval = 25 * time.Millisecond

// Options parameterizes an Engine.
type Options struct {
	// RunsDirectory roots the run store (required).
	RunsDirectory string
	// DriverName is recorded on every run this engine creates.
	DriverName string
	// ExecutorName is recorded on every run this engine creates.
	ExecutorName string
	// DefaultModel is used when a spawn input does not name a model.
	DefaultModel string
	// Driver executes spawns (required for RunSync).
	Driver driver.Driver
	// Extensions observe the run lifecycle.
	Extensions []*extension.Registration

	// Hub receives every event and I/O line. Defaults to a fresh hub.
	Hub *hub.Hub
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Clock defaults to time.Now. Injected for tests.
	Clock func() time.Time
	// Collector is optional; nil disables counting.
	Collector *metrics.Collector
}

// Engine drives runs against a single runs directory.
type Engine struct {
	store        *store.Store
	hub          *hub.Hub
	logger       *log.Logger
	clock        func() time.Time
	collector    *metrics.Collector
	driverName   string
	executorName string
	defaultModel string
	driver       driver.Driver
	extensions   []*extension.Registration

	mu   sync.Mutex
	runs map[string]*runState
}

// runState is the per-run mutable state shared by the lifecycle and the
// spawn effect. The mutex serializes sequence allocation and the
// spawn-results accumulator.
type runState struct {
	mu           sync.Mutex
	spawnCounter int
	spawns       []types.SpawnResult
}

// New constructs an engine.
func New(opts Options) (*Engine, error) {
	if opts.RunsDirectory == "" {
		return nil, errors.New("engine requires a runs directory")
	}
	if opts.Hub == nil {
		opts.Hub = hub.New()
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		store:        store.New(opts.RunsDirectory),
		hub:          opts.Hub,
		logger:       opts.Logger,
		clock:        opts.Clock,
		collector:    opts.Collector,
		driverName:   opts.DriverName,
		executorName: opts.ExecutorName,
		defaultModel: opts.DefaultModel,
		driver:       opts.Driver,
		extensions:   opts.Extensions,
	}, nil
}

// Store exposes the underlying run store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Hub exposes the observer hub.
func (e *Engine) Hub() *hub.Hub {
	return e.hub
}

func (e *Engine) stateFor(runID string) *runState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runs == nil {
		e.runs = make(map[string]*runState)
	}
	rs, ok := e.runs[runID]
	if !ok {
		rs = &runState{}
		e.runs[runID] = rs
	}
	return rs
}

// SubmitParams holds the inputs to Submit.
type SubmitParams struct {
	RunID       string
	ProgramPath string
	Metadata    map[string]string
}

// Submit creates a pending run record. Idempotent: if the run already
// exists, it is returned unchanged.
func (e *Engine) Submit(params SubmitParams) (*types.RunRecord, error) {
	record, err := e.store.GetRun(params.RunID)
	if err == nil {
		return record, nil
	}
	if !store.IsRunNotFound(err) {
		return nil, err
	}
	return e.store.Create(store.CreateParams{
		RunID:       params.RunID,
		ProgramPath: params.ProgramPath,
		Driver:      e.driverName,
		Executor:    e.executorName,
		Status:      types.StatusPending,
		Metadata:    params.Metadata,
		Timestamp:   e.clock(),
	})
}

// Status returns the current run record.
func (e *Engine) Status(runID string) (*types.RunRecord, error) {
	return e.store.GetRun(runID)
}

// Result returns the run result, or nil if the run has not finalized.
func (e *Engine) Result(runID string) (*types.RunResult, error) {
	return e.store.GetResult(runID)
}

// List enumerates runs, newest first, optionally filtered by status.
func (e *Engine) List(status types.RunStatus) ([]*types.RunRecord, error) {
	return e.store.ListRuns(status)
}

// emit is the single tier-1 write path. Under the run mutex it re-reads the
// persisted log, re-derives the lifecycle guard, allocates the next
// sequence, validates, appends, and publishes. Extension fanout happens
// outside the lock because hooks may emit extension:error recursively.
func (e *Engine) emit(ctx context.Context, rs *runState, runID string, typ event.Type, payload event.Payload) (*event.Event, error) {
	rs.mu.Lock()
	ev, err := e.appendLocked(runID, typ, payload)
	rs.mu.Unlock()
	if err != nil {
		return nil, err
	}
	e.fanOut(ctx, rs, ev)
	return ev, nil
}

func (e *Engine) appendLocked(runID string, typ event.Type, payload event.Payload) (*event.Event, error) {
	persisted, err := e.store.ReadEvents(runID)
	if err != nil {
		return nil, err
	}
	guard, err := event.Replay(persisted)
	if err != nil {
		return nil, err
	}
	var maxSeq int64
	for _, prev := range persisted {
		if prev.Sequence > maxSeq {
			maxSeq = prev.Sequence
		}
	}

	ev := &event.Event{
		SchemaVersion: types.SchemaVersion,
		RunID:         runID,
		Sequence:      maxSeq + 1,
		Timestamp:     types.FormatTimestamp(e.clock()),
		Type:          typ,
		Payload:       payload,
	}
	if err := guard.Apply(ev); err != nil {
		return nil, err
	}
	if err := e.store.AppendEvent(runID, ev); err != nil {
		return nil, err
	}
	e.collector.IncEventsAppended()
	e.hub.PublishEvent(runID, ev)
	return ev, nil
}

// fanOut invokes extension onEvent hooks for ev. Hook failures are soft:
// they become extension:error events, and a failure to persist the
// extension:error itself is dropped to avoid failure loops.
func (e *Engine) fanOut(ctx context.Context, rs *runState, ev *event.Event) {
	if ev.Type == event.TypeExtensionError {
		return
	}
	rc := e.runContext(ev.RunID)
	for _, ext := range e.extensions {
		if ext.OnEvent == nil {
			continue
		}
		if err := ext.OnEvent(ctx, ev, rc); err != nil {
			e.recordExtensionError(ctx, rs, ev.RunID, ext.Name, extension.HookOnEvent, err)
		}
	}
}

func (e *Engine) recordExtensionError(ctx context.Context, rs *runState, runID, name, hook string, hookErr error) {
	e.logger.Warn("extension hook failed", map[string]any{
		"extension": name,
		"hook":      hook,
		"error":     hookErr.Error(),
	})
	_, err := e.emit(ctx, rs, runID, event.TypeExtensionError, event.ExtensionErrorPayload{
		ExtensionName: name,
		Hook:          hook,
		Message:       prettyCause(hookErr),
	})
	if err != nil {
		e.logger.Warn("dropping extension:error event", map[string]any{
			"extension": name,
			"error":     err.Error(),
		})
	}
}

func (e *Engine) runContext(runID string) extension.RunContext {
	paths := types.DeriveRunPaths(e.store.RunsDirectory(), runID)
	return extension.RunContext{
		RunID:        runID,
		RunDirectory: paths.RunDir,
		Logger:       e.logger,
	}
}

// ExtensionAPI resolves a program-callable extension method.
func (e *Engine) ExtensionAPI(extensionName, methodName string) (extension.APIMethod, error) {
	for _, ext := range e.extensions {
		if ext.Name != extensionName {
			continue
		}
		if method, ok := ext.API[methodName]; ok {
			return method, nil
		}
		break
	}
	return nil, fmt.Errorf("unknown extension api %s.%s", extensionName, methodName)
}

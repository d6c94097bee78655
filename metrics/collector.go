// Package metrics provides per-run counters.
//
// The Collector accumulates counters during a single run and is reported as
// one summary log line at worker completion. It is a leaf package with no
// internal dependencies. All methods are nil-receiver safe so callers never
// need to guard for an absent collector.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of the counters.
type Snapshot struct {
	EventsAppended  int64
	SpawnsStarted   int64
	SpawnsCompleted int64
	SpawnsFailed    int64
	IoLines         int64

	// Dimensions (informational, set at construction)
	RunID    string
	Driver   string
	Executor string
}

// Collector accumulates counters during a single run.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	eventsAppended  int64
	spawnsStarted   int64
	spawnsCompleted int64
	spawnsFailed    int64
	ioLines         int64

	runID    string
	driver   string
	executor string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(runID, driver, executor string) *Collector {
	return &Collector{runID: runID, driver: driver, executor: executor}
}

// IncEventsAppended records one persisted tier-1 event.
func (c *Collector) IncEventsAppended() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsAppended++
	c.mu.Unlock()
}

// IncSpawnsStarted records one spawn:start.
func (c *Collector) IncSpawnsStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.spawnsStarted++
	c.mu.Unlock()
}

// IncSpawnsCompleted records one spawn:complete.
func (c *Collector) IncSpawnsCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.spawnsCompleted++
	c.mu.Unlock()
}

// IncSpawnsFailed records one spawn:error.
func (c *Collector) IncSpawnsFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.spawnsFailed++
	c.mu.Unlock()
}

// AddIoLines records n tier-2 lines.
func (c *Collector) AddIoLines(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ioLines += n
	c.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
// Safe on a nil receiver (returns the zero snapshot).
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		EventsAppended:  c.eventsAppended,
		SpawnsStarted:   c.spawnsStarted,
		SpawnsCompleted: c.spawnsCompleted,
		SpawnsFailed:    c.spawnsFailed,
		IoLines:         c.ioLines,
		RunID:           c.runID,
		Driver:          c.driver,
		Executor:        c.executor,
	}
}

// Fields returns the snapshot as a log field map.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"events_appended":  s.EventsAppended,
		"spawns_started":   s.SpawnsStarted,
		"spawns_completed": s.SpawnsCompleted,
		"spawns_failed":    s.SpawnsFailed,
		"io_lines":         s.IoLines,
	}
}

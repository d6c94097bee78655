package metrics

import (
	"sync"
	"testing"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("run_a", "test", "bun")
	c.IncEventsAppended()
	c.IncEventsAppended()
	c.IncSpawnsStarted()
	c.IncSpawnsCompleted()
	c.IncSpawnsFailed()
	c.AddIoLines(5)

	s := c.Snapshot()
	if s.EventsAppended != 2 || s.SpawnsStarted != 1 || s.SpawnsCompleted != 1 || s.SpawnsFailed != 1 || s.IoLines != 5 {
		t.Errorf("snapshot = %+v", s)
	}
	if s.RunID != "run_a" || s.Driver != "test" || s.Executor != "bun" {
		t.Errorf("dimensions = %+v", s)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.IncEventsAppended()
	c.IncSpawnsStarted()
	c.IncSpawnsCompleted()
	c.IncSpawnsFailed()
	c.AddIoLines(3)

	if s := c.Snapshot(); s != (Snapshot{}) {
		t.Errorf("nil collector snapshot = %+v", s)
	}
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector("run_a", "test", "bun")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncEventsAppended()
			}
		}()
	}
	wg.Wait()
	if s := c.Snapshot(); s.EventsAppended != 1000 {
		t.Errorf("EventsAppended = %d", s.EventsAppended)
	}
}

func TestSnapshotFields(t *testing.T) {
	s := Snapshot{EventsAppended: 7, IoLines: 2}
	fields := s.Fields()
	if fields["events_appended"] != int64(7) || fields["io_lines"] != int64(2) {
		t.Errorf("fields = %v", fields)
	}
}

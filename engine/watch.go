package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/millrun/mill/event"
	"github.com/millrun/mill/types"
)

// Watch streams a run's tier-1 events: all persisted events in order,
// then live events until the run terminal closes the stream.
//
// New events are always read back from the log so that appends from other
// processes are observed; the in-process hub only shortens the poll latency.
// The returned channel closes on run terminal or context cancellation.
func (e *Engine) Watch(ctx context.Context, runID string) (<-chan *event.Event, error) {
	if _, err := e.store.GetRun(runID); err != nil {
		return nil, err
	}

	sub := e.hub.WatchEvents(runID)
	out := make(chan *event.Event)
	go func() {
		defer close(out)
		defer sub.Close()

		var last int64
		for {
			persisted, err := e.store.ReadEvents(runID)
			if err != nil {
				return
			}
			for _, ev := range persisted {
				if ev.Sequence <= last {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				last = ev.Sequence
				if ev.Type.IsRunTerminal() {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-sub.C():
			case <-time.After(pollInterval):
			}
		}
	}()
	return out, nil
}

// WatchIo streams a run's live tier-2 I/O events. I/O is ephemeral, so
// there is no backfill; the channel closes on context cancellation.
func (e *Engine) WatchIo(ctx context.Context, runID string) (<-chan *event.IoStreamEvent, error) {
	if _, err := e.store.GetRun(runID); err != nil {
		return nil, err
	}

	sub := e.hub.WatchIo(runID)
	out := make(chan *event.IoStreamEvent)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C():
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ValidateSinceTime checks a --since-time value: it must parse as an ISO
// 8601 UTC timestamp and survive a parse-then-format round trip unchanged.
func ValidateSinceTime(sinceTime string) (time.Time, error) {
	parsed, err := time.Parse(types.TimestampFormat, sinceTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since-time %q: %w", sinceTime, err)
	}
	if types.FormatTimestamp(parsed) != sinceTime {
		return time.Time{}, fmt.Errorf("invalid since-time %q: not in canonical form %s", sinceTime, types.FormatTimestamp(parsed))
	}
	return parsed, nil
}

// WatchAll streams tier-1 events across every run: the persisted backlog
// sorted by (timestamp, runId, sequence), then live events. An empty
// sinceTime means no lower bound. The stream stays open until the context
// is cancelled.
func (e *Engine) WatchAll(ctx context.Context, sinceTime string) (<-chan *event.Event, error) {
	var since time.Time
	if sinceTime != "" {
		parsed, err := ValidateSinceTime(sinceTime)
		if err != nil {
			return nil, err
		}
		since = parsed
	}

	sub := e.hub.WatchGlobal()
	out := make(chan *event.Event)
	go func() {
		defer close(out)
		defer sub.Close()

		// seen tracks the highest emitted sequence per run.
		seen := make(map[string]int64)

		backlog, err := e.collectAll(since, seen)
		if err != nil {
			return
		}
		for _, ev := range backlog {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.C():
			case <-time.After(pollInterval):
			}

			fresh, err := e.collectAll(since, seen)
			if err != nil {
				return
			}
			for _, ev := range fresh {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// collectAll gathers events across all runs with sequence above the seen
// watermark and timestamp at or after since, sorted by
// (timestamp, runId, sequence). It advances the watermarks.
func (e *Engine) collectAll(since time.Time, seen map[string]int64) ([]*event.Event, error) {
	records, err := e.store.ListRuns("")
	if err != nil {
		return nil, err
	}

	type timedEvent struct {
		ev *event.Event
		at time.Time
	}
	var collected []timedEvent
	for _, record := range records {
		persisted, err := e.store.ReadEvents(record.ID)
		if err != nil {
			continue
		}
		for _, ev := range persisted {
			if ev.Sequence <= seen[ev.RunID] {
				continue
			}
			seen[ev.RunID] = ev.Sequence
			at, err := time.Parse(types.TimestampFormat, ev.Timestamp)
			if err != nil {
				continue
			}
			if !since.IsZero() && at.Before(since) {
				continue
			}
			collected = append(collected, timedEvent{ev: ev, at: at})
		}
	}

	sort.Slice(collected, func(i, j int) bool {
		if !collected[i].at.Equal(collected[j].at) {
			return collected[i].at.Before(collected[j].at)
		}
		if collected[i].ev.RunID != collected[j].ev.RunID {
			return collected[i].ev.RunID < collected[j].ev.RunID
		}
		return collected[i].ev.Sequence < collected[j].ev.Sequence
	})

	events := make([]*event.Event, len(collected))
	for i, te := range collected {
		events[i] = te.ev
	}
	return events, nil
}

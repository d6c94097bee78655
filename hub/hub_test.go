package hub

import (
	"testing"
	"time"

	"github.com/millrun/mill/event"
	"github.com/millrun/mill/types"
)

func testEvent(runID string, seq int64) *event.Event {
	return &event.Event{
		SchemaVersion: types.SchemaVersion,
		RunID:         runID,
		Sequence:      seq,
		Timestamp:     "2026-08-25T10:00:00Z",
		Type:          event.TypeRunStart,
		Payload:       event.RunStartPayload{},
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
		panic("unreachable")
	}
}

func TestPublishReachesRunAndGlobalSubscribers(t *testing.T) {
	h := New()
	runSub := h.WatchEvents("run_a")
	defer runSub.Close()
	globalSub := h.WatchGlobal()
	defer globalSub.Close()

	h.PublishEvent("run_a", testEvent("run_a", 1))

	if ev := receive(t, runSub.C()); ev.Sequence != 1 {
		t.Errorf("run subscriber got sequence %d", ev.Sequence)
	}
	if ev := receive(t, globalSub.C()); ev.RunID != "run_a" {
		t.Errorf("global subscriber got run %s", ev.RunID)
	}
}

func TestSubscriberOnlySeesOwnRun(t *testing.T) {
	h := New()
	sub := h.WatchEvents("run_a")
	defer sub.Close()

	h.PublishEvent("run_b", testEvent("run_b", 1))
	h.PublishEvent("run_a", testEvent("run_a", 1))

	if ev := receive(t, sub.C()); ev.RunID != "run_a" {
		t.Errorf("got event for %s", ev.RunID)
	}
}

func TestSubscriptionSeesOnlyFutureEvents(t *testing.T) {
	h := New()
	h.PublishEvent("run_a", testEvent("run_a", 1))

	sub := h.WatchEvents("run_a")
	defer sub.Close()
	h.PublishEvent("run_a", testEvent("run_a", 2))

	if ev := receive(t, sub.C()); ev.Sequence != 2 {
		t.Errorf("got sequence %d, want 2", ev.Sequence)
	}
}

func TestOrderPreservedPerSubscriber(t *testing.T) {
	h := New()
	sub := h.WatchEvents("run_a")
	defer sub.Close()

	for i := int64(1); i <= 100; i++ {
		h.PublishEvent("run_a", testEvent("run_a", i))
	}
	for i := int64(1); i <= 100; i++ {
		if ev := receive(t, sub.C()); ev.Sequence != i {
			t.Fatalf("got sequence %d, want %d", ev.Sequence, i)
		}
	}
}

func TestCloseStopsDeliveryAndClosesChannel(t *testing.T) {
	h := New()
	sub := h.WatchEvents("run_a")
	sub.Close()
	sub.Close() // safe to call twice

	h.PublishEvent("run_a", testEvent("run_a", 1))

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("received value after Close")
		}
	case <-time.After(2 * time.Second):
		t.Error("channel should be closed after Close")
	}
}

func TestPublishIo(t *testing.T) {
	h := New()
	sub := h.WatchIo("run_a")
	defer sub.Close()

	h.PublishIo(&event.IoStreamEvent{
		RunID:  "run_a",
		Source: event.IoSourceDriver,
		Stream: event.IoStreamStdout,
		Line:   "hello",
	})

	if ev := receive(t, sub.C()); ev.Line != "hello" {
		t.Errorf("got line %q", ev.Line)
	}
}

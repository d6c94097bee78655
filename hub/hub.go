// Package hub implements the process-wide observer hub: in-memory pub/sub
// channels for tier-1 events (per-run and global) and tier-2 I/O lines.
//
// Channels are created on first access and persist for the lifetime of the
// process; subscriptions see only values published after the subscribe call.
// Publishing never blocks: each subscription buffers without bound and a
// pump goroutine drains the buffer into the subscriber's channel.
//
// The hub is strictly in-process. Cross-process observers go through the
// persisted event log instead.
package hub

import (
	"sync"

	"github.com/millrun/mill/event"
)

// Subscription is one live stream of values of type T.
type Subscription[T any] struct {
	mu     sync.Mutex
	queue  []T
	signal chan struct{}
	closed bool

	out    chan T
	done   chan struct{}
	cancel func()
}

func newSubscription[T any](cancel func()) *Subscription[T] {
	s := &Subscription[T]{
		signal: make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.pump()
	return s
}

// C returns the channel of published values. It is closed after Close.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Close detaches the subscription from its topic, drops buffered values,
// and closes the channel. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	close(s.done)
}

func (s *Subscription[T]) publish(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			v := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- v:
			case <-s.done:
				return
			}
		}
	}
}

// topic is a broadcast fanout to a set of subscriptions.
type topic[T any] struct {
	mu   sync.Mutex
	subs map[*Subscription[T]]struct{}
}

func newTopic[T any]() *topic[T] {
	return &topic[T]{subs: make(map[*Subscription[T]]struct{})}
}

func (t *topic[T]) subscribe() *Subscription[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sub *Subscription[T]
	sub = newSubscription[T](func() {
		t.mu.Lock()
		delete(t.subs, sub)
		t.mu.Unlock()
	})
	t.subs[sub] = struct{}{}
	return sub
}

func (t *topic[T]) publish(v T) {
	t.mu.Lock()
	subs := make([]*Subscription[T], 0, len(t.subs))
	for sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	for _, sub := range subs {
		sub.publish(v)
	}
}

// runTopics holds the per-run channels, created on first access.
type runTopics struct {
	events *topic[*event.Event]
	io     *topic[*event.IoStreamEvent]
}

// Hub is the process-wide observer hub.
type Hub struct {
	mu     sync.Mutex
	runs   map[string]*runTopics
	global *topic[*event.Event]
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		runs:   make(map[string]*runTopics),
		global: newTopic[*event.Event](),
	}
}

func (h *Hub) forRun(runID string) *runTopics {
	h.mu.Lock()
	defer h.mu.Unlock()
	topics, ok := h.runs[runID]
	if !ok {
		topics = &runTopics{
			events: newTopic[*event.Event](),
			io:     newTopic[*event.IoStreamEvent](),
		}
		h.runs[runID] = topics
	}
	return topics
}

// PublishEvent publishes a tier-1 event to the per-run channel and the
// global channel.
func (h *Hub) PublishEvent(runID string, ev *event.Event) {
	h.forRun(runID).events.publish(ev)
	h.global.publish(ev)
}

// PublishIo publishes a tier-2 I/O event to the per-run I/O channel.
func (h *Hub) PublishIo(ev *event.IoStreamEvent) {
	h.forRun(ev.RunID).io.publish(ev)
}

// WatchEvents subscribes to tier-1 events for one run, from now forward.
func (h *Hub) WatchEvents(runID string) *Subscription[*event.Event] {
	return h.forRun(runID).events.subscribe()
}

// WatchIo subscribes to tier-2 I/O events for one run, from now forward.
func (h *Hub) WatchIo(runID string) *Subscription[*event.IoStreamEvent] {
	return h.forRun(runID).io.subscribe()
}

// WatchGlobal subscribes to tier-1 events across all runs, from now forward.
func (h *Hub) WatchGlobal() *Subscription[*event.Event] {
	return h.global.subscribe()
}

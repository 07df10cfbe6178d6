package agent

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Subscriber receives progress events for one session.
type Subscriber func(Event)

// Tap receives every event on the bus regardless of session. Used by
// cross-process relays (Redis) and notification bridges.
type Tap func(Event)

// ProgressBus is a per-session publish/subscribe registry decoupling the run
// loop from transport consumers. Delivery is synchronous with emission and
// best-effort: a panicking subscriber is recovered and logged, never allowed
// to crash the run loop. Instances are injectable; there is no package-level
// singleton.
type ProgressBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[uuid.UUID]map[int]Subscriber
	taps   map[int]Tap
}

func NewProgressBus() *ProgressBus {
	return &ProgressBus{
		subs: make(map[uuid.UUID]map[int]Subscriber),
		taps: make(map[int]Tap),
	}
}

// Subscribe registers a callback for a session's events and returns an
// unsubscribe function. When the last subscriber for a session unsubscribes,
// the session's registration entry is removed.
func (b *ProgressBus) Subscribe(sessionID uuid.UUID, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	set, ok := b.subs[sessionID]
	if !ok {
		set = make(map[int]Subscriber)
		b.subs[sessionID] = set
	}
	set[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		set, ok := b.subs[sessionID]
		if !ok {
			return
		}
		delete(set, id)
		if len(set) == 0 {
			delete(b.subs, sessionID)
		}
	}
}

// AddTap registers a bus-wide observer and returns a removal function.
func (b *ProgressBus) AddTap(fn Tap) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.taps[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.taps, id)
	}
}

// SubscriberCount returns the number of subscribers for a session.
func (b *ProgressBus) SubscriberCount(sessionID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// Publish delivers an event to every subscriber of its session and every tap,
// in registration order. Callbacks run outside the bus lock so they may
// themselves subscribe or unsubscribe.
func (b *ProgressBus) Publish(evt Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs[evt.SessionID])+len(b.taps))
	byID := make(map[int]Subscriber, cap(ids))
	for id, fn := range b.subs[evt.SessionID] {
		ids = append(ids, id)
		byID[id] = fn
	}
	for id, fn := range b.taps {
		ids = append(ids, id)
		byID[id] = Subscriber(fn)
	}
	b.mu.RUnlock()

	sort.Ints(ids)
	targets := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, byID[id])
	}

	for _, fn := range targets {
		b.deliver(evt, fn)
	}
}

func (b *ProgressBus) deliver(evt Event, fn Subscriber) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("session_id", evt.SessionID.String()).
				Str("event_type", string(evt.Type)).
				Msg("agent.ProgressBus: subscriber panicked")
		}
	}()
	fn(evt)
}

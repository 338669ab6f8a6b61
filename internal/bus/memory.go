package bus

import (
	"context"
	"errors"
	"sync"
)

type memoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryBus returns an in-process bus. Sufficient for a single
// gateway instance and for tests; multi-instance deployments need the
// Redis bus.
func NewMemoryBus() Bus {
	return &memoryBus{subs: make(map[string]map[*memorySubscription]struct{})}
}

func (b *memoryBus) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	targets := make([]*memorySubscription, 0, len(b.subs[event.TeamID]))
	for sub := range b.subs[event.TeamID] {
		targets = append(targets, sub)
	}
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return errors.New("bus closed")
	}
	for _, sub := range targets {
		sub.deliver(event)
	}
	return nil
}

func (b *memoryBus) Subscribe(teamID string, fn Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("bus closed")
	}
	sub := &memorySubscription{bus: b, teamID: teamID, events: make(chan Event, 64)}
	if _, ok := b.subs[teamID]; !ok {
		b.subs[teamID] = make(map[*memorySubscription]struct{})
	}
	b.subs[teamID][sub] = struct{}{}
	go func() {
		for event := range sub.events {
			fn(event)
		}
	}()
	return sub, nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			sub.shutdown()
		}
	}
	b.subs = make(map[string]map[*memorySubscription]struct{})
	return nil
}

type memorySubscription struct {
	bus    *memoryBus
	teamID string

	mu     sync.Mutex
	events chan Event
	closed bool
}

// deliver never blocks: a subscriber whose handler has stalled loses
// events instead of wedging every publisher on the team. Receivers
// reload on the next notification, so a dropped event only delays them.
func (s *memorySubscription) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
	}
}

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	if set, ok := s.bus.subs[s.teamID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(s.bus.subs, s.teamID)
		}
	}
	s.bus.mu.Unlock()

	s.shutdown()
	return nil
}

func (s *memorySubscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

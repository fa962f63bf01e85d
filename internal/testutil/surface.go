package testutil

import (
	"sync"
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

// Sink is a RenderSink that remembers what it was given.
type Sink struct {
	mu       sync.Mutex
	Attached []*core.Stream
}

func (s *Sink) Attach(st *core.Stream) error {
	s.mu.Lock()
	s.Attached = append(s.Attached, st)
	s.mu.Unlock()
	return nil
}

func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Attached)
}

// Surface records every report the controller makes.
type Surface struct {
	mu        sync.Mutex
	States    []domain.View
	Incoming  []domain.IncomingCall
	Ticks     []time.Duration
	Presence  map[domain.StreamSlot]bool
	Health    []domain.LinkHealth
	Failures  []error
	sinks     map[domain.StreamSlot]*Sink
	lookups   map[domain.StreamSlot]int
	mountWhen map[domain.StreamSlot]int
}

func NewSurface() *Surface {
	return &Surface{
		Presence:  make(map[domain.StreamSlot]bool),
		sinks:     make(map[domain.StreamSlot]*Sink),
		lookups:   make(map[domain.StreamSlot]int),
		mountWhen: make(map[domain.StreamSlot]int),
	}
}

// Mount makes slot resolvable from the n-th lookup on (1-based). n <= 1
// mounts it immediately; n < 0 never mounts it.
func (s *Surface) Mount(slot domain.StreamSlot, n int) *Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	sink := &Sink{}
	s.sinks[slot] = sink
	s.mountWhen[slot] = n
	return sink
}

func (s *Surface) Sink(slot domain.StreamSlot) (core.RenderSink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups[slot]++
	sink, ok := s.sinks[slot]
	if !ok {
		return nil, false
	}
	when := s.mountWhen[slot]
	if when < 0 || s.lookups[slot] < when {
		return nil, false
	}
	return sink, true
}

func (s *Surface) Lookups(slot domain.StreamSlot) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups[slot]
}

func (s *Surface) CallStateChanged(v domain.View) {
	s.mu.Lock()
	s.States = append(s.States, v)
	s.mu.Unlock()
}

func (s *Surface) IncomingCall(c domain.IncomingCall) {
	s.mu.Lock()
	s.Incoming = append(s.Incoming, c)
	s.mu.Unlock()
}

func (s *Surface) DurationTick(d time.Duration) {
	s.mu.Lock()
	s.Ticks = append(s.Ticks, d)
	s.mu.Unlock()
}

func (s *Surface) StreamPresence(slot domain.StreamSlot, present bool) {
	s.mu.Lock()
	s.Presence[slot] = present
	s.mu.Unlock()
}

func (s *Surface) LinkHealth(h domain.LinkHealth) {
	s.mu.Lock()
	s.Health = append(s.Health, h)
	s.mu.Unlock()
}

func (s *Surface) CallFailed(err error) {
	s.mu.Lock()
	s.Failures = append(s.Failures, err)
	s.mu.Unlock()
}

// Lifecycles lists every reported lifecycle in order.
func (s *Surface) Lifecycles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.States))
	for _, v := range s.States {
		out = append(out, v.Lifecycle)
	}
	return out
}

func (s *Surface) Last() (domain.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.States) == 0 {
		return domain.View{}, false
	}
	return s.States[len(s.States)-1], true
}

func (s *Surface) FailureList() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.Failures))
	copy(out, s.Failures)
	return out
}

func (s *Surface) IncomingList() []domain.IncomingCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.IncomingCall, len(s.Incoming))
	copy(out, s.Incoming)
	return out
}

func (s *Surface) TickList() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.Ticks))
	copy(out, s.Ticks)
	return out
}

func (s *Surface) PresenceOf(slot domain.StreamSlot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Presence[slot]
}

package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

// Sent is one outbound signaling message.
type Sent struct {
	Type       string
	CallID     domain.CallID
	SDP        string
	Reason     string
	Candidates []domain.Candidate
	Duration   time.Duration
	Initiate   core.InitiateRequest
}

// Signaler records outbound messages and lets tests inject inbound events.
type Signaler struct {
	mu   sync.Mutex
	sent []Sent

	NextCallID  domain.CallID
	InitiateErr error

	// InitiateHook runs while the initiate round trip is in flight.
	InitiateHook func()

	AcceptErr  error
	AcceptHook func()

	events chan core.Event
}

func NewSignaler() *Signaler {
	return &Signaler{NextCallID: "call-1", events: make(chan core.Event, 64)}
}

func (s *Signaler) record(m Sent) {
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
}

func (s *Signaler) Initiate(_ context.Context, req core.InitiateRequest) (domain.CallID, error) {
	s.record(Sent{Type: "call-initiate", SDP: req.Offer, Initiate: req})
	s.mu.Lock()
	hook, err, id := s.InitiateHook, s.InitiateErr, s.NextCallID
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Signaler) Accept(_ context.Context, id domain.CallID, answer string) error {
	s.record(Sent{Type: "call-accept", CallID: id, SDP: answer})
	s.mu.Lock()
	hook, err := s.AcceptHook, s.AcceptErr
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (s *Signaler) Reject(_ context.Context, id domain.CallID, reason string) error {
	s.record(Sent{Type: "call-reject", CallID: id, Reason: reason})
	return nil
}

func (s *Signaler) SendCandidates(_ context.Context, id domain.CallID, batch []domain.Candidate) error {
	s.record(Sent{Type: "ice-candidate", CallID: id, Candidates: batch})
	return nil
}

func (s *Signaler) SendAnswer(_ context.Context, id domain.CallID, answer string) error {
	s.record(Sent{Type: "call-answer", CallID: id, SDP: answer})
	return nil
}

func (s *Signaler) Renegotiate(_ context.Context, id domain.CallID, offer string) error {
	s.record(Sent{Type: "call-renegotiate", CallID: id, SDP: offer})
	return nil
}

func (s *Signaler) End(_ context.Context, id domain.CallID, d time.Duration) error {
	s.record(Sent{Type: "call-end", CallID: id, Duration: d})
	return nil
}

func (s *Signaler) Events() <-chan core.Event { return s.events }

func (s *Signaler) Close() {}

// Push queues an inbound event.
func (s *Signaler) Push(e core.Event) { s.events <- e }

func (s *Signaler) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sent, len(s.sent))
	copy(out, s.sent)
	return out
}

// OfType returns outbound messages of one type.
func (s *Signaler) OfType(typ string) []Sent {
	var out []Sent
	for _, m := range s.Sent() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

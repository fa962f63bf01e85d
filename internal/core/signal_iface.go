package core

import (
	"context"
	"time"

	"github.com/dkeye/VoiceCall/internal/domain"
)

// InitiateRequest carries the offer together with call-initiate so the
// receiver gets it without a second round trip.
type InitiateRequest struct {
	CallerID        domain.UserID
	ReceiverID      domain.UserID
	Kind            domain.CallKind
	ConversationRef domain.ConversationRef
	Offer           string
}

// Signaler is the call signaling channel as the controller sees it.
// Owned by the adapter; the adapter must Close() it.
type Signaler interface {
	// Initiate sends call-initiate and waits for the relay to assign a call id.
	Initiate(ctx context.Context, req InitiateRequest) (domain.CallID, error)
	Accept(ctx context.Context, id domain.CallID, answer string) error
	Reject(ctx context.Context, id domain.CallID, reason string) error
	SendCandidates(ctx context.Context, id domain.CallID, batch []domain.Candidate) error
	// SendAnswer answers a renegotiation offer.
	SendAnswer(ctx context.Context, id domain.CallID, answer string) error
	Renegotiate(ctx context.Context, id domain.CallID, offer string) error
	End(ctx context.Context, id domain.CallID, duration time.Duration) error
	Events() <-chan Event
	Close()
}

// Event is one inbound signaling message.
type Event interface {
	CallID() domain.CallID
}

type IncomingCallEvent struct {
	ID     domain.CallID
	Caller domain.User
	Kind   domain.CallKind
}

type OfferEvent struct {
	ID  domain.CallID
	SDP string
}

type AnswerEvent struct {
	ID         domain.CallID
	SDP        string
	Candidates []domain.Candidate
}

type CandidateEvent struct {
	ID         domain.CallID
	Candidates []domain.Candidate
}

type RejectedEvent struct {
	ID     domain.CallID
	Reason string
}

type EndedEvent struct {
	ID     domain.CallID
	Reason string
}

type RenegotiateEvent struct {
	ID  domain.CallID
	SDP string
}

func (e IncomingCallEvent) CallID() domain.CallID { return e.ID }
func (e OfferEvent) CallID() domain.CallID        { return e.ID }
func (e AnswerEvent) CallID() domain.CallID       { return e.ID }
func (e CandidateEvent) CallID() domain.CallID    { return e.ID }
func (e RejectedEvent) CallID() domain.CallID     { return e.ID }
func (e EndedEvent) CallID() domain.CallID        { return e.ID }
func (e RenegotiateEvent) CallID() domain.CallID  { return e.ID }

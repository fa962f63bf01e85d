// Package proto is the call signaling wire format shared by the relay and
// the client. Every frame is one JSON envelope over the websocket.
package proto

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/VoiceCall/internal/domain"
)

const (
	TypeInitiate    = "call-initiate"
	TypeIncoming    = "call-incoming"
	TypeOffer       = "call-offer"
	TypeAccept      = "call-accept"
	TypeAnswer      = "call-answer"
	TypeReject      = "call-reject"
	TypeRejected    = "call-rejected"
	TypeCandidate   = "ice-candidate"
	TypeEnd         = "call-end"
	TypeEnded       = "call-ended"
	TypeRenegotiate = "call-renegotiate"
	TypeAck         = "ack"
	TypePing        = "ping"
	TypePong        = "pong"
)

// Relay error codes carried in Envelope.Error.
const (
	ErrCodeBusy       = "busy"
	ErrCodeOffline    = "offline"
	ErrCodeSelf       = "self-call"
	ErrCodeInCall     = "already-in-call"
	ErrCodeNotFound   = "call-not-found"
	ErrCodeForbidden  = "forbidden"
	ErrCodeBadRequest = "bad-request"
	ErrCodeRateLimit  = "rate-limited"
)

// Envelope wraps every frame. Ref pairs a request with its ack.
type Envelope struct {
	Type  string          `json:"type"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type Initiate struct {
	CallerID        domain.UserID          `json:"callerId"`
	ReceiverID      domain.UserID          `json:"receiverId"`
	CallKind        domain.CallKind        `json:"callKind"`
	ConversationRef domain.ConversationRef `json:"conversationRef,omitempty"`
	Offer           string                 `json:"offer"`
}

type Incoming struct {
	CallID     domain.CallID   `json:"callId"`
	CallerID   domain.UserID   `json:"callerId"`
	CallerName string          `json:"callerName"`
	CallKind   domain.CallKind `json:"callKind"`
}

// Offer carries an SDP offer: call-offer and call-renegotiate.
type Offer struct {
	CallID domain.CallID `json:"callId"`
	Offer  string        `json:"offer"`
}

// Answer carries an SDP answer: call-accept and call-answer.
type Answer struct {
	CallID     domain.CallID      `json:"callId"`
	Answer     string             `json:"answer"`
	Candidates []domain.Candidate `json:"candidates,omitempty"`
}

// Reject is used by call-reject and call-rejected.
type Reject struct {
	CallID domain.CallID `json:"callId"`
	Reason string        `json:"reason,omitempty"`
}

type Candidates struct {
	CallID     domain.CallID      `json:"callId"`
	Candidates []domain.Candidate `json:"candidates"`
}

// End is call-end. Duration is in whole seconds.
type End struct {
	CallID   domain.CallID `json:"callId"`
	Duration int64         `json:"duration"`
}

type Ended struct {
	CallID domain.CallID `json:"callId"`
	Reason string        `json:"reason,omitempty"`
}

type Ack struct {
	CallID domain.CallID `json:"callId,omitempty"`
}

// Encode builds a frame. A nil payload leaves Data empty.
func Encode(typ, ref string, payload any) ([]byte, error) {
	env := Envelope{Type: typ, Ref: ref}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", typ, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// EncodeError builds an ack reporting a failed request.
func EncodeError(ref, code string) ([]byte, error) {
	return json.Marshal(Envelope{Type: TypeAck, Ref: ref, Error: code})
}

func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// Payload unmarshals the envelope data into v.
func (e Envelope) Payload(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s payload: %w", e.Type, err)
	}
	return nil
}

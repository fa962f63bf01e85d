package domain

import (
	"errors"
	"time"
)

type (
	CallID          string
	ConversationRef string
)

type Role int

const (
	RoleCaller Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleReceiver {
		return "receiver"
	}
	return "caller"
}

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool { return k == CallAudio || k == CallVideo }

// RequiredKinds lists the track kinds a local stream must carry for this call.
func (k CallKind) RequiredKinds() []MediaKind {
	if k == CallVideo {
		return []MediaKind{MediaAudio, MediaVideo}
	}
	return []MediaKind{MediaAudio}
}

type LifecycleState int

const (
	StateIdle LifecycleState = iota
	StateInitiating
	StateAwaitingAnswer
	StateAwaitingAccept
	StateNegotiating
	StateConnected
	StateReconnecting
	StateEnded
)

var lifecycleNames = [...]string{
	StateIdle:           "idle",
	StateInitiating:     "initiating",
	StateAwaitingAnswer: "awaiting_answer",
	StateAwaitingAccept: "awaiting_accept",
	StateNegotiating:    "negotiating",
	StateConnected:      "connected",
	StateReconnecting:   "reconnecting",
	StateEnded:          "ended",
}

func (s LifecycleState) String() string {
	if int(s) < len(lifecycleNames) {
		return lifecycleNames[s]
	}
	return "unknown"
}

// Terminal reports whether nothing can follow s.
func (s LifecycleState) Terminal() bool { return s == StateEnded }

// ConnectionState is the last observed peer-connection level state. It is
// kept apart from LifecycleState: Disconnected may heal on its own.
type ConnectionState int

const (
	ConnNew ConnectionState = iota
	ConnConnecting
	ConnConnected
	ConnDisconnected
	ConnFailed
	ConnClosed
)

var connectionNames = [...]string{
	ConnNew:          "new",
	ConnConnecting:   "connecting",
	ConnConnected:    "connected",
	ConnDisconnected: "disconnected",
	ConnFailed:       "failed",
	ConnClosed:       "closed",
}

func (s ConnectionState) String() string {
	if int(s) < len(connectionNames) {
		return connectionNames[s]
	}
	return "unknown"
}

func (s ConnectionState) Fatal() bool { return s == ConnFailed || s == ConnClosed }

var (
	ErrCallIDAlreadySet = errors.New("call id already set")
	ErrCallIDEmpty      = errors.New("call id empty")
)

// CallSession is the single owned value describing one call. It carries no
// locking; the controller that owns it serializes access.
type CallSession struct {
	callID CallID

	Role            Role
	Kind            CallKind
	Counterpart     User
	ConversationRef ConversationRef

	Lifecycle  LifecycleState
	Connection ConnectionState

	startedAtConnected time.Time
	createdAt          time.Time
}

func NewCallSession(role Role, kind CallKind, counterpart User, ref ConversationRef, now time.Time) *CallSession {
	return &CallSession{
		Role:            role,
		Kind:            kind,
		Counterpart:     counterpart,
		ConversationRef: ref,
		Lifecycle:       StateIdle,
		Connection:      ConnNew,
		createdAt:       now,
	}
}

func (s *CallSession) CallID() CallID { return s.callID }

// SetCallID assigns the relay-issued id. It may be called once.
func (s *CallSession) SetCallID(id CallID) error {
	if id == "" {
		return ErrCallIDEmpty
	}
	if s.callID != "" {
		return ErrCallIDAlreadySet
	}
	s.callID = id
	return nil
}

// MarkConnected records the first time the connection reached connected.
// It reports whether this call started the clock.
func (s *CallSession) MarkConnected(now time.Time) bool {
	if !s.startedAtConnected.IsZero() {
		return false
	}
	s.startedAtConnected = now
	return true
}

func (s *CallSession) StartedAtConnected() time.Time { return s.startedAtConnected }

// Duration is always derived from the first connected timestamp.
func (s *CallSession) Duration(now time.Time) time.Duration {
	if s.startedAtConnected.IsZero() || s.Lifecycle == StateEnded {
		return 0
	}
	return now.Sub(s.startedAtConnected)
}

func (s *CallSession) CreatedAt() time.Time { return s.createdAt }

func (s *CallSession) Live() bool { return s != nil && s.Lifecycle != StateEnded }

// View is a read-only copy handed to the UI.
type View struct {
	CallID          CallID          `json:"callId,omitempty"`
	Role            string          `json:"role"`
	Kind            CallKind        `json:"callKind"`
	Counterpart     User            `json:"counterpart"`
	ConversationRef ConversationRef `json:"conversationRef,omitempty"`
	Lifecycle       string          `json:"lifecycle"`
	Connection      string          `json:"connection"`
	Duration        time.Duration   `json:"duration"`
}

func (s *CallSession) View(now time.Time) View {
	return View{
		CallID:          s.callID,
		Role:            s.Role.String(),
		Kind:            s.Kind,
		Counterpart:     s.Counterpart,
		ConversationRef: s.ConversationRef,
		Lifecycle:       s.Lifecycle.String(),
		Connection:      s.Connection.String(),
		Duration:        s.Duration(now),
	}
}

// IncomingCall is what the receiver's UI sees before any resource is committed.
type IncomingCall struct {
	CallID CallID
	Caller User
	Kind   CallKind
}

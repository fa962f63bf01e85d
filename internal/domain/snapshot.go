package domain

import "time"

// SnapshotKey is the durable store key of the active call snapshot.
const SnapshotKey = "activeCallState"

// Snapshot is the persisted projection of an active CallSession. It only
// drives the reconnecting placeholder after a restart; a peer connection
// never survives one.
type Snapshot struct {
	CallID          CallID          `json:"callId"`
	Role            string          `json:"role"`
	Kind            CallKind        `json:"callKind"`
	CounterpartID   UserID          `json:"counterpartId"`
	CounterpartName string          `json:"counterpartName"`
	ConversationRef ConversationRef `json:"conversationRef,omitempty"`
	SavedAt         time.Time       `json:"savedAt"`
}

func (s *CallSession) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		CallID:          s.callID,
		Role:            s.Role.String(),
		Kind:            s.Kind,
		CounterpartID:   s.Counterpart.ID,
		CounterpartName: s.Counterpart.DisplayName,
		ConversationRef: s.ConversationRef,
		SavedAt:         now,
	}
}

// Restore rebuilds a session shell from a snapshot, already in Reconnecting.
func (sn Snapshot) Restore(now time.Time) *CallSession {
	role := RoleCaller
	if sn.Role == RoleReceiver.String() {
		role = RoleReceiver
	}
	s := NewCallSession(role, sn.Kind, User{ID: sn.CounterpartID, DisplayName: sn.CounterpartName}, sn.ConversationRef, now)
	s.callID = sn.CallID
	s.Lifecycle = StateReconnecting
	return s
}

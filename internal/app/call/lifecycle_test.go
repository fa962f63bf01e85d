package call

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/VoiceCall/internal/domain"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to domain.LifecycleState
		want     bool
	}{
		{domain.StateIdle, domain.StateInitiating, true},
		{domain.StateIdle, domain.StateAwaitingAccept, true},
		{domain.StateIdle, domain.StateConnected, false},
		{domain.StateInitiating, domain.StateAwaitingAnswer, true},
		{domain.StateInitiating, domain.StateNegotiating, false},
		{domain.StateAwaitingAnswer, domain.StateNegotiating, true},
		{domain.StateAwaitingAnswer, domain.StateConnected, false},
		{domain.StateAwaitingAccept, domain.StateNegotiating, true},
		{domain.StateNegotiating, domain.StateConnected, true},
		{domain.StateConnected, domain.StateReconnecting, false},
		{domain.StateConnected, domain.StateNegotiating, false},
		{domain.StateReconnecting, domain.StateConnected, false},
		{domain.StateEnded, domain.StateIdle, false},
		{domain.StateEnded, domain.StateEnded, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEveryLiveStateCanEnd(t *testing.T) {
	for from := domain.StateIdle; from < domain.StateEnded; from++ {
		if !CanTransition(from, domain.StateEnded) {
			t.Errorf("%s cannot end", from)
		}
	}
}

func TestTransitionRejectsIllegalStep(t *testing.T) {
	s := domain.NewCallSession(domain.RoleCaller, domain.CallAudio, domain.User{ID: "bob"}, "", time.Now())
	err := transition(s, domain.StateConnected)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
	if s.Lifecycle != domain.StateIdle {
		t.Fatalf("lifecycle moved to %s", s.Lifecycle)
	}
	if err := transition(s, domain.StateInitiating); err != nil {
		t.Fatalf("transition: %v", err)
	}
}

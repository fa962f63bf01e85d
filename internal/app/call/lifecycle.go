package call

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dkeye/VoiceCall/internal/domain"
)

var ErrIllegalTransition = errors.New("illegal lifecycle transition")

// transitions is the call lifecycle. Ended is reachable from every live
// state; a connection that drops and heals stays in Connected.
var transitions = map[domain.LifecycleState][]domain.LifecycleState{
	domain.StateIdle:           {domain.StateInitiating, domain.StateAwaitingAccept, domain.StateReconnecting, domain.StateEnded},
	domain.StateInitiating:     {domain.StateAwaitingAnswer, domain.StateEnded},
	domain.StateAwaitingAnswer: {domain.StateNegotiating, domain.StateEnded},
	domain.StateAwaitingAccept: {domain.StateNegotiating, domain.StateEnded},
	domain.StateNegotiating:    {domain.StateConnected, domain.StateEnded},
	domain.StateConnected:      {domain.StateEnded},
	domain.StateReconnecting:   {domain.StateEnded},
}

func CanTransition(from, to domain.LifecycleState) bool {
	return slices.Contains(transitions[from], to)
}

// transition moves s to next or reports why it cannot.
func transition(s *domain.CallSession, next domain.LifecycleState) error {
	if !CanTransition(s.Lifecycle, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Lifecycle, next)
	}
	s.Lifecycle = next
	return nil
}

package call

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/VoiceCall/internal/app/negotiate"
	"github.com/dkeye/VoiceCall/internal/app/supervisor"
	"github.com/dkeye/VoiceCall/internal/app/throttle"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

// Handle applies one inbound signaling event. Events for a call other than
// the live one are dropped.
func (c *Controller) Handle(ctx context.Context, ev core.Event) {
	switch e := ev.(type) {
	case core.IncomingCallEvent:
		c.onIncoming(ctx, e)
	case core.OfferEvent:
		c.onOffer(e)
	case core.AnswerEvent:
		c.onAnswer(ctx, e)
	case core.CandidateEvent:
		c.onCandidates(e.ID, e.Candidates)
	case core.RenegotiateEvent:
		c.onRenegotiate(ctx, e)
	case core.RejectedEvent:
		cause := fmt.Errorf("%w: %s", domain.ErrCallRejected, e.Reason)
		if e.Reason == ReasonBusy {
			cause = domain.ErrBusy
		}
		c.onRemoteEnd(e.ID, cause)
	case core.EndedEvent:
		c.onRemoteEnd(e.ID, nil)
	default:
		c.logger.Warn().Str("call_id", string(ev.CallID())).Msgf("unhandled event %T", ev)
	}
}

// liveFor returns the live session and its supervisor if id names it.
func (c *Controller) liveFor(id domain.CallID) (*domain.CallSession, *supervisor.Supervisor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if !c.current(s) || s.CallID() != id {
		return nil, nil, false
	}
	return s, c.sup, true
}

func (c *Controller) onIncoming(ctx context.Context, e core.IncomingCallEvent) {
	c.mu.Lock()
	stale, superseded := c.supersedeRestoredLocked()
	if superseded {
		defer c.endRestored(ctx, stale)
	}
	if c.session.Live() {
		busyWith := c.session.CallID()
		c.mu.Unlock()
		c.logger.Info().Str("call_id", string(e.ID)).Str("active", string(busyWith)).Msg("busy, rejecting incoming call")
		c.notifyReject(ctx, e.ID, ReasonBusy)
		return
	}
	s := domain.NewCallSession(domain.RoleReceiver, e.Kind, e.Caller, "", c.clock.Now())
	if err := s.SetCallID(e.ID); err != nil {
		c.mu.Unlock()
		c.logger.Warn().Err(err).Msg("incoming call without id")
		return
	}
	if c.offer.id != e.ID {
		c.offer = pendingOffer{}
	}
	c.adoptLocked(s)
	c.sup = nil
	c.moveLocked(s, domain.StateAwaitingAccept)
	c.armRingTimerLocked(s)
	c.surface.IncomingCall(domain.IncomingCall{CallID: e.ID, Caller: e.Caller, Kind: e.Kind})
	c.mu.Unlock()

	c.logger.Info().Str("call_id", string(e.ID)).Str("caller", string(e.Caller.ID)).Str("kind", string(e.Kind)).Msg("incoming call")
}

// onOffer keeps the offer for Accept. It may arrive before or after call-incoming.
func (c *Controller) onOffer(e core.OfferEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if !s.Live() || s.Lifecycle == domain.StateReconnecting {
		c.offer = pendingOffer{id: e.ID, sdp: e.SDP}
		return
	}
	if s.CallID() != e.ID {
		c.logger.Debug().Str("call_id", string(e.ID)).Msg("offer for another call dropped")
		return
	}
	if s.Lifecycle != domain.StateAwaitingAccept {
		c.logger.Debug().Str("call_id", string(e.ID)).Msg("offer after accept dropped")
		return
	}
	c.offer = pendingOffer{id: e.ID, sdp: e.SDP}
}

func (c *Controller) onAnswer(ctx context.Context, e core.AnswerEvent) {
	s, sup, ok := c.liveFor(e.ID)
	if !ok || sup == nil {
		c.logger.Debug().Str("call_id", string(e.ID)).Msg("answer without a live connection dropped")
		return
	}
	err := sup.Negotiator().ApplyRemoteAnswer(ctx, e.SDP)
	switch {
	case errors.Is(err, negotiate.ErrNegotiationRace):
		c.logger.Info().Err(err).Str("call_id", string(e.ID)).Msg("answer absorbed")
		return
	case err != nil:
		c.mu.Lock()
		c.failLocked(s, fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err))
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if c.current(s) && s.Lifecycle == domain.StateAwaitingAnswer {
		c.disarmLocked()
		c.moveLocked(s, domain.StateNegotiating)
	}
	c.mu.Unlock()

	if len(e.Candidates) > 0 {
		c.onCandidates(e.ID, e.Candidates)
	}
}

func (c *Controller) onCandidates(id domain.CallID, cands []domain.Candidate) {
	_, sup, ok := c.liveFor(id)
	if !ok || sup == nil {
		c.logger.Debug().Str("call_id", string(id)).Int("count", len(cands)).Msg("candidates without a live connection dropped")
		return
	}
	for _, cand := range cands {
		if err := sup.Negotiator().AddRemoteCandidate(cand); err != nil {
			c.logger.Warn().Err(err).Str("call_id", string(id)).Msg("remote candidate")
		}
	}
}

// onRenegotiate answers a track-set change from the far side. The
// connection state is left untouched. When both sides offered at once the
// receiver yields, answers, then offers its own change again.
func (c *Controller) onRenegotiate(ctx context.Context, e core.RenegotiateEvent) {
	_, sup, ok := c.liveFor(e.ID)
	if !ok || sup == nil {
		c.logger.Debug().Str("call_id", string(e.ID)).Msg("renegotiation without a live connection dropped")
		return
	}
	neg := sup.Negotiator()
	if err := neg.ApplyRemoteOffer(ctx, e.SDP); err != nil {
		c.logger.Warn().Err(err).Str("call_id", string(e.ID)).Str("phase", neg.Phase().String()).Msg("renegotiation offer absorbed")
		return
	}
	answer, err := neg.CreateAnswer(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Str("call_id", string(e.ID)).Msg("renegotiation answer")
		return
	}
	if err := c.signaler.SendAnswer(ctx, e.ID, answer); err != nil {
		c.logger.Warn().Err(err).Str("call_id", string(e.ID)).Msg("send renegotiation answer")
		return
	}
	if !neg.TakeRolledBack() {
		return
	}
	offer, err := neg.CreateOffer(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Str("call_id", string(e.ID)).Msg("repeat renegotiation offer")
		return
	}
	if err := c.signaler.Renegotiate(ctx, e.ID, offer); err != nil {
		c.logger.Warn().Err(err).Str("call_id", string(e.ID)).Msg("send repeated renegotiation offer")
	}
}

// onRemoteEnd tears down after call-ended or call-rejected.
func (c *Controller) onRemoteEnd(id domain.CallID, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if !c.current(s) || s.CallID() != id {
		return
	}
	c.endLocked(s, cause)
}

// hooks binds supervisor callbacks to session s. Each one re-checks that s
// is still live before touching anything.
func (c *Controller) hooks(s *domain.CallSession) supervisor.Hooks {
	return supervisor.Hooks{
		OnState: func(state domain.ConnectionState, first bool) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if !c.current(s) {
				return
			}
			s.Connection = state
			if first && s.MarkConnected(c.clock.Now()) {
				c.disarmLocked()
				if c.moveLocked(s, domain.StateConnected) {
					c.startTicksLocked(s)
				}
				return
			}
			c.publishLocked(s)
		},
		OnTerminated: func(state domain.ConnectionState) {
			c.mu.Lock()
			if !c.current(s) {
				c.mu.Unlock()
				return
			}
			id, d := s.CallID(), s.Duration(c.clock.Now())
			s.Connection = state
			c.endLocked(s, domain.ErrConnectionFailed)
			c.mu.Unlock()
			if id == "" {
				return
			}
			if err := c.signaler.End(c.ctx, id, d); err != nil {
				c.logger.Warn().Err(err).Str("call_id", string(id)).Msg("end after connection failure")
			}
		},
		OnHealth: c.surface.LinkHealth,
		OnRemoteTrack: func(t core.RemoteTrack) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if !c.current(s) {
				return
			}
			if c.remoteStream != nil {
				c.remoteStream.Add(t)
				return
			}
			c.remoteStream = core.NewStream(t.StreamID(), t)
			c.surface.StreamPresence(domain.SlotRemote, true)
			c.attachAsync(domain.SlotRemote, c.remoteStream)
		},
		SendCandidates: func(ctx context.Context, b throttle.Batch) error {
			return c.signaler.SendCandidates(ctx, b.CallID, b.Candidates)
		},
	}
}

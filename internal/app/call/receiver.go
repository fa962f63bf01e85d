package call

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceCall/internal/app/supervisor"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

// Accept answers the ringing call id. The remote offer is applied before
// local media is requested so the offer decides which kinds are expected.
func (c *Controller) Accept(ctx context.Context, id domain.CallID) error {
	c.mu.Lock()
	s := c.session
	if !c.current(s) || s.CallID() != id || s.Lifecycle != domain.StateAwaitingAccept {
		c.mu.Unlock()
		return domain.ErrNoActiveCall
	}
	offer := c.offer
	if offer.id != id || offer.sdp == "" {
		c.endLocked(s, domain.ErrInvalidCall)
		c.mu.Unlock()
		c.notifyReject(ctx, id, ReasonInvalid)
		return domain.ErrInvalidCall
	}
	c.disarmLocked()
	pc, err := c.factory.NewPeerConnection(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err)
		c.endLocked(s, err)
		c.mu.Unlock()
		c.notifyReject(ctx, id, ReasonNoMedia)
		return err
	}
	sup := supervisor.New(pc, string(id), c.opts.Supervisor, c.hooks(s))
	sup.Negotiator().SetPolite(true)
	c.sup = sup
	c.mu.Unlock()

	logger := c.logger.With().Str("call_id", string(id)).Logger()

	if err := sup.Negotiator().ApplyRemoteOffer(ctx, offer.sdp); err != nil {
		logger.Error().Err(err).Msg("apply remote offer")
		c.abortAccept(ctx, s, fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err), ReasonInvalid)
		return err
	}

	tracks, err := c.media.Acquire(ctx, core.ConstraintsFor(s.Kind))

	c.mu.Lock()
	if !c.current(s) {
		c.mu.Unlock()
		stopAll(tracks)
		return domain.ErrNoActiveCall
	}
	if err == nil {
		err = validate(s.Kind, tracks)
	}
	if err != nil {
		c.mu.Unlock()
		stopAll(tracks)
		c.abortAccept(ctx, s, err, ReasonNoMedia)
		return err
	}
	c.attachLocalLocked(tracks)
	for _, t := range tracks {
		if err := pc.AddLocalTrack(t); err != nil {
			c.mu.Unlock()
			err = fmt.Errorf("%w: add %s track: %w", domain.ErrConnectionFailed, t.Kind(), err)
			c.abortAccept(ctx, s, err, ReasonNoMedia)
			return err
		}
	}
	c.mu.Unlock()

	answer, err := sup.Negotiator().CreateAnswer(ctx)
	if err != nil {
		c.abortAccept(ctx, s, fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err), ReasonInvalid)
		return err
	}

	c.mu.Lock()
	if !c.current(s) {
		c.mu.Unlock()
		return domain.ErrNoActiveCall
	}
	c.moveLocked(s, domain.StateNegotiating)
	c.persistLocked(s)
	c.offer = pendingOffer{}
	c.mu.Unlock()

	if err := c.signaler.Accept(ctx, id, answer); err != nil {
		c.mu.Lock()
		if !c.current(s) {
			c.mu.Unlock()
			return domain.ErrNoActiveCall
		}
		c.failLocked(s, fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err))
		c.mu.Unlock()
		return err
	}
	sup.BindCall(id)
	logger.Info().Msg("call accepted")
	return nil
}

// Reject declines the ringing call id. Nothing but the relay is told.
func (c *Controller) Reject(ctx context.Context, id domain.CallID, reason string) error {
	if reason == "" {
		reason = ReasonDeclined
	}
	c.mu.Lock()
	s := c.session
	if c.current(s) && s.CallID() == id && s.Lifecycle == domain.StateAwaitingAccept {
		c.endLocked(s, nil)
	}
	c.mu.Unlock()
	return c.signaler.Reject(ctx, id, reason)
}

// abortAccept ends s after a failed accept and tells the caller.
func (c *Controller) abortAccept(ctx context.Context, s *domain.CallSession, cause error, reason string) {
	c.mu.Lock()
	if !c.current(s) {
		c.mu.Unlock()
		return
	}
	id := s.CallID()
	c.endLocked(s, cause)
	c.mu.Unlock()
	c.notifyReject(ctx, id, reason)
}

func (c *Controller) notifyReject(ctx context.Context, id domain.CallID, reason string) {
	if err := c.signaler.Reject(ctx, id, reason); err != nil {
		c.logger.Warn().Err(err).Str("call_id", string(id)).Msg("reject")
	}
}

package call

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceCall/internal/app/supervisor"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/google/uuid"
)

// Initiate places a call to peer. It returns once the relay has assigned a
// call id; the answer arrives later as a signaling event.
func (c *Controller) Initiate(ctx context.Context, peer domain.User, kind domain.CallKind, ref domain.ConversationRef) error {
	if !kind.Valid() {
		return domain.ErrInvalidKind
	}

	c.mu.Lock()
	stale, superseded := c.supersedeRestoredLocked()
	if c.session.Live() {
		c.mu.Unlock()
		return domain.ErrCallInProgress
	}
	s := domain.NewCallSession(domain.RoleCaller, kind, peer, ref, c.clock.Now())
	c.adoptLocked(s)
	c.moveLocked(s, domain.StateInitiating)
	c.mu.Unlock()

	if superseded {
		c.endRestored(ctx, stale)
	}

	logger := c.logger.With().Str("peer", string(peer.ID)).Str("kind", string(kind)).Logger()
	logger.Info().Msg("initiating call")

	tracks, err := c.media.Acquire(ctx, core.ConstraintsFor(kind))

	c.mu.Lock()
	if !c.current(s) {
		c.mu.Unlock()
		stopAll(tracks)
		return domain.ErrNoActiveCall
	}
	if err == nil {
		err = validate(kind, tracks)
	}
	if err != nil {
		stopAll(tracks)
		c.failLocked(s, err)
		c.mu.Unlock()
		return err
	}
	pc, err := c.factory.NewPeerConnection(ctx)
	if err != nil {
		stopAll(tracks)
		err = fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err)
		c.failLocked(s, err)
		c.mu.Unlock()
		return err
	}
	sup := supervisor.New(pc, uuid.NewString(), c.opts.Supervisor, c.hooks(s))
	c.sup = sup
	c.attachLocalLocked(tracks)
	for _, t := range tracks {
		if err := pc.AddLocalTrack(t); err != nil {
			err = fmt.Errorf("%w: add %s track: %w", domain.ErrConnectionFailed, t.Kind(), err)
			c.failLocked(s, err)
			c.mu.Unlock()
			return err
		}
	}
	c.mu.Unlock()

	offer, err := sup.Negotiator().CreateOffer(ctx)

	c.mu.Lock()
	if !c.current(s) {
		c.mu.Unlock()
		return domain.ErrNoActiveCall
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err)
		c.failLocked(s, err)
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	id, err := c.signaler.Initiate(ctx, core.InitiateRequest{
		CallerID:        c.me.UserID,
		ReceiverID:      peer.ID,
		Kind:            kind,
		ConversationRef: ref,
		Offer:           offer,
	})

	c.mu.Lock()
	if !c.current(s) {
		c.mu.Unlock()
		if err == nil {
			// Hung up during the round trip; the relay now knows a call
			// nobody else will end.
			if endErr := c.signaler.End(ctx, id, 0); endErr != nil {
				logger.Warn().Err(endErr).Msg("end abandoned call")
			}
		}
		return domain.ErrNoActiveCall
	}
	if err != nil {
		c.failLocked(s, err)
		c.mu.Unlock()
		return err
	}
	if err := s.SetCallID(id); err != nil {
		c.failLocked(s, err)
		c.mu.Unlock()
		return err
	}
	sup.BindCall(id)
	c.moveLocked(s, domain.StateAwaitingAnswer)
	c.persistLocked(s)
	c.armRingTimerLocked(s)
	c.mu.Unlock()

	logger.Info().Str("call_id", string(id)).Msg("call initiated")
	return nil
}

// EnableVideo adds a camera track to a connected audio call and starts a
// renegotiation round. The far side answers with call-answer.
func (c *Controller) EnableVideo(ctx context.Context) error {
	c.mu.Lock()
	s, sup := c.session, c.sup
	if !c.current(s) || sup == nil || s.Lifecycle != domain.StateConnected {
		c.mu.Unlock()
		return domain.ErrNoActiveCall
	}
	if s.Kind == domain.CallVideo {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	tracks, err := c.media.Acquire(ctx, core.Constraints{Video: true})

	c.mu.Lock()
	if !c.current(s) || c.sup != sup {
		c.mu.Unlock()
		stopAll(tracks)
		return domain.ErrNoActiveCall
	}
	if err != nil {
		c.mu.Unlock()
		stopAll(tracks)
		c.surface.CallFailed(err)
		return err
	}
	var cam core.LocalTrack
	for _, t := range tracks {
		if t.Kind() == domain.MediaVideo && cam == nil {
			cam = t
			continue
		}
		t.Stop()
	}
	if cam == nil {
		c.mu.Unlock()
		c.surface.CallFailed(domain.ErrNoVideoTrack)
		return domain.ErrNoVideoTrack
	}
	if err := sup.Connection().AddLocalTrack(cam); err != nil {
		c.mu.Unlock()
		cam.Stop()
		return fmt.Errorf("add video track: %w", err)
	}
	c.local = append(c.local, cam)
	c.localStream.Add(cam)
	c.presenter.Add(cam)
	s.Kind = domain.CallVideo
	c.persistLocked(s)
	c.publishLocked(s)
	id := s.CallID()
	c.mu.Unlock()

	offer, err := sup.Negotiator().CreateOffer(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Str("call_id", string(id)).Msg("renegotiation offer")
		return err
	}
	return c.signaler.Renegotiate(ctx, id, offer)
}

package call

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceCall/internal/domain"
)

// restore shows a persisted call as reconnecting. A peer connection does not
// survive a restart, so once ResumeWindow passes the call is ended for good.
func (c *Controller) restore(ctx context.Context) error {
	snap, ok, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return nil
	}

	c.mu.Lock()
	if c.session.Live() {
		c.mu.Unlock()
		return nil
	}
	s := snap.Restore(c.clock.Now())
	c.adoptLocked(s)
	c.publishLocked(s)
	c.mu.Unlock()

	t := c.clock.AfterFunc(c.opts.ResumeWindow, func() { c.expireRestored(s) })
	c.mu.Lock()
	if c.current(s) && s.Lifecycle == domain.StateReconnecting {
		c.timer = t
	} else {
		t.Stop()
	}
	c.mu.Unlock()

	c.logger.Info().
		Str("call_id", string(snap.CallID)).
		Str("role", snap.Role).
		Time("saved_at", snap.SavedAt).
		Dur("resume_window", c.opts.ResumeWindow).
		Msg("restored call, reconnecting")
	return nil
}

func (c *Controller) expireRestored(s *domain.CallSession) {
	c.mu.Lock()
	if !c.current(s) || s.Lifecycle != domain.StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	id := s.CallID()
	c.endLocked(s, nil)
	c.mu.Unlock()

	c.logger.Info().Str("call_id", string(id)).Msg("restored call not resumed, ending")
	c.endRestored(c.ctx, id)
}

// supersedeRestoredLocked ends a reconnecting placeholder so a new call can
// take its place. It returns the id the relay still has to be told about.
func (c *Controller) supersedeRestoredLocked() (domain.CallID, bool) {
	s := c.session
	if !c.current(s) || s.Lifecycle != domain.StateReconnecting {
		return "", false
	}
	id, early := s.CallID(), c.offer
	c.endLocked(s, nil)
	c.offer = early
	c.logger.Info().Str("call_id", string(id)).Msg("restored call superseded by a new call")
	return id, true
}

func (c *Controller) endRestored(ctx context.Context, id domain.CallID) {
	if err := c.signaler.End(ctx, id, 0); err != nil {
		c.logger.Warn().Err(err).Str("call_id", string(id)).Msg("end restored call")
	}
}

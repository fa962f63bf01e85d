// Package call is the call session state machine. It is the only piece the
// UI talks to: it owns the signaling channel, the peer connection
// supervisor of the active call and the local media.
package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/VoiceCall/internal/app/present"
	"github.com/dkeye/VoiceCall/internal/app/supervisor"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/dkeye/VoiceCall/internal/retry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const (
	ReasonBusy     = "busy"
	ReasonDeclined = "declined"
	ReasonTimeout  = "timeout"
	ReasonNoMedia  = "media-unavailable"
	ReasonInvalid  = "invalid-call"
)

type Deps struct {
	Identity *domain.Identity
	Signaler core.Signaler
	Factory  core.PeerConnectionFactory
	Media    core.MediaSource
	Store    core.SnapshotStore
	Surface  core.Surface
	Clock    clock.Clock
}

type Options struct {
	// RingTimeout ends an unanswered call; zero waits forever.
	RingTimeout time.Duration
	// ResumeWindow is how long a restored call shows as reconnecting
	// before it is terminated.
	ResumeWindow      time.Duration
	TickInterval      time.Duration
	ReconcileInterval time.Duration
	Attach            retry.Policy
	Supervisor        supervisor.Config
}

type Controller struct {
	me        *domain.Identity
	signaler  core.Signaler
	factory   core.PeerConnectionFactory
	media     core.MediaSource
	store     core.SnapshotStore
	surface   core.Surface
	clock     clock.Clock
	opts      Options
	presenter *present.Presenter
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu           sync.Mutex
	session      *domain.CallSession
	sup          *supervisor.Supervisor
	local        []core.LocalTrack
	localStream  *core.Stream
	remoteStream *core.Stream
	offer        pendingOffer
	stopTicks    context.CancelFunc
	timer        *clock.Timer
}

// pendingOffer is the last call-offer seen for a call not yet accepted.
type pendingOffer struct {
	id  domain.CallID
	sdp string
}

func New(d Deps, opts Options) *Controller {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Attach.MaxAttempts == 0 {
		opts.Attach = retry.Policy{BaseDelay: 100 * time.Millisecond, Factor: retry.DefaultFactor, MaxAttempts: 8}
	}
	if opts.Supervisor.Clock == nil {
		opts.Supervisor.Clock = d.Clock
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		me:        d.Identity,
		signaler:  d.Signaler,
		factory:   d.Factory,
		media:     d.Media,
		store:     d.Store,
		surface:   d.Surface,
		clock:     d.Clock,
		opts:      opts,
		presenter: present.New(d.Surface, opts.Attach, d.Clock),
		logger:    log.With().Str("module", "call").Str("user", string(d.Identity.UserID)).Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start restores a persisted call, then dispatches signaling events and runs
// track reconciliation until ctx is done or Close is called.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.restore(ctx); err != nil {
		return err
	}
	c.wg.Go(func() { c.presenter.Run(c.ctx, c.opts.ReconcileInterval) })
	c.wg.Go(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.ctx.Done():
				return
			case ev, ok := <-c.signaler.Events():
				if !ok {
					c.logger.Warn().Msg("signaling channel closed")
					return
				}
				c.Handle(c.ctx, ev)
			}
		}
	})
	return nil
}

// Close hangs up any live call and stops background work.
func (c *Controller) Close() {
	if err := c.Hangup(c.ctx); err != nil {
		c.logger.Warn().Err(err).Msg("hangup on close")
	}
	c.cancel()
	c.wg.Wait()
}

// View returns the active session as the UI sees it.
func (c *Controller) View() (domain.View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return domain.View{}, false
	}
	return c.session.View(c.clock.Now()), true
}

func (c *Controller) SetMuted(muted bool) {
	c.presenter.UpdateIntent(func(i *domain.Intent) { i.Muted = muted })
}

func (c *Controller) SetCameraOff(off bool) {
	c.presenter.UpdateIntent(func(i *domain.Intent) { i.CameraOff = off })
}

// Hangup ends the live call from any state. Calling it again is a no-op.
func (c *Controller) Hangup(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	if !s.Live() {
		c.mu.Unlock()
		return nil
	}
	id, d, ringing := s.CallID(), s.Duration(c.clock.Now()), s.Lifecycle == domain.StateAwaitingAccept
	c.endLocked(s, nil)
	c.mu.Unlock()

	c.logger.Info().Str("call_id", string(id)).Dur("duration", d).Msg("hangup")
	if id == "" {
		return nil
	}
	if ringing {
		return c.signaler.Reject(ctx, id, ReasonDeclined)
	}
	return c.signaler.End(ctx, id, d)
}

// adoptLocked makes s the session. Media choices start fresh with every call.
func (c *Controller) adoptLocked(s *domain.CallSession) {
	c.session = s
	c.presenter.SetIntent(domain.Intent{})
}

// current reports whether s is still the live session.
func (c *Controller) current(s *domain.CallSession) bool {
	return s != nil && c.session == s && s.Live()
}

func (c *Controller) moveLocked(s *domain.CallSession, next domain.LifecycleState) bool {
	if err := transition(s, next); err != nil {
		c.logger.Warn().Err(err).Str("call_id", string(s.CallID())).Msg("transition absorbed")
		return false
	}
	c.publishLocked(s)
	return true
}

func (c *Controller) publishLocked(s *domain.CallSession) {
	c.surface.CallStateChanged(s.View(c.clock.Now()))
}

func (c *Controller) persistLocked(s *domain.CallSession) {
	if err := c.store.Save(c.ctx, s.Snapshot(c.clock.Now())); err != nil {
		c.logger.Error().Err(err).Msg("save snapshot")
	}
}

// endLocked moves s to Ended and releases everything it owns. Local tracks
// are stopped here and nowhere else.
func (c *Controller) endLocked(s *domain.CallSession, cause error) {
	if !c.current(s) {
		return
	}
	c.moveLocked(s, domain.StateEnded)

	c.disarmLocked()
	if c.stopTicks != nil {
		c.stopTicks()
		c.stopTicks = nil
	}
	for _, t := range c.local {
		t.Stop()
	}
	c.local = nil
	c.presenter.Forget()
	if c.sup != nil {
		c.sup.Close()
		c.sup = nil
	}
	if c.localStream != nil {
		c.localStream = nil
		c.surface.StreamPresence(domain.SlotLocal, false)
	}
	if c.remoteStream != nil {
		c.remoteStream = nil
		c.surface.StreamPresence(domain.SlotRemote, false)
	}
	c.offer = pendingOffer{}
	if err := c.store.Clear(c.ctx); err != nil {
		c.logger.Error().Err(err).Msg("clear snapshot")
	}
	c.surface.DurationTick(0)
	if cause != nil {
		c.surface.CallFailed(cause)
	}
	c.logger.Info().Str("call_id", string(s.CallID())).AnErr("cause", cause).Msg("call ended")
}

// failLocked ends s with a user-facing cause if it is still live. A session
// already torn down reports nothing.
func (c *Controller) failLocked(s *domain.CallSession, cause error) {
	if !c.current(s) {
		c.logger.Debug().Err(cause).Str("call_id", string(s.CallID())).Msg("failure after teardown dropped")
		return
	}
	c.endLocked(s, cause)
}

func stopAll(tracks []core.LocalTrack) {
	for _, t := range tracks {
		t.Stop()
	}
}

// validate checks the acquired tracks cover every kind the call needs.
func validate(kind domain.CallKind, tracks []core.LocalTrack) error {
	for _, want := range kind.RequiredKinds() {
		found := false
		for _, t := range tracks {
			if t.Kind() == want {
				found = true
				break
			}
		}
		if found {
			continue
		}
		if want == domain.MediaVideo {
			return domain.ErrNoVideoTrack
		}
		return domain.ErrNoAudioTrack
	}
	return nil
}

// attachLocalLocked publishes the local stream and wires its tracks to reconciliation.
func (c *Controller) attachLocalLocked(tracks []core.LocalTrack) {
	media := make([]core.MediaTrack, 0, len(tracks))
	for _, t := range tracks {
		media = append(media, t)
	}
	c.local = tracks
	c.localStream = core.NewStream("local", media...)
	c.presenter.Watch(media...)
	c.surface.StreamPresence(domain.SlotLocal, true)
	c.attachAsync(domain.SlotLocal, c.localStream)
}

func (c *Controller) attachAsync(slot domain.StreamSlot, st *core.Stream) {
	c.wg.Go(func() {
		if err := c.presenter.Attach(c.ctx, slot, st); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Debug().Err(err).Str("slot", string(slot)).Msg("stream stays on placeholder")
		}
	})
}

// startTicksLocked reports the call duration every tick while connected.
func (c *Controller) startTicksLocked(s *domain.CallSession) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.stopTicks = cancel
	ticker := c.clock.Ticker(c.opts.TickInterval)
	c.wg.Go(func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				if !c.current(s) {
					c.mu.Unlock()
					return
				}
				d := s.Duration(c.clock.Now())
				c.mu.Unlock()
				c.surface.DurationTick(d)
			}
		}
	})
}

// armRingTimerLocked ends s if it is still ringing after RingTimeout.
func (c *Controller) armRingTimerLocked(s *domain.CallSession) {
	if c.opts.RingTimeout <= 0 {
		return
	}
	c.timer = c.clock.AfterFunc(c.opts.RingTimeout, func() { c.ringExpired(s) })
}

func (c *Controller) disarmLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) ringExpired(s *domain.CallSession) {
	c.mu.Lock()
	if !c.current(s) {
		c.mu.Unlock()
		return
	}
	state, id := s.Lifecycle, s.CallID()
	if state != domain.StateAwaitingAnswer && state != domain.StateAwaitingAccept {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.endLocked(s, nil)
	c.mu.Unlock()

	c.logger.Info().Str("call_id", string(id)).Str("state", state.String()).Msg("ring timeout")
	var err error
	if state == domain.StateAwaitingAccept {
		err = c.signaler.Reject(c.ctx, id, ReasonTimeout)
	} else {
		err = c.signaler.End(c.ctx, id, 0)
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("ring timeout notify")
	}
}

// Package supervisor owns the peer connection of one call and folds its
// connection, ICE and gathering signals into a single connection state.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/VoiceCall/internal/app/negotiate"
	"github.com/dkeye/VoiceCall/internal/app/throttle"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"
)

type Config struct {
	// HealthInterval is the link-health sampling period once connected.
	HealthInterval time.Duration
	// DrainRate caps candidate batches per second.
	DrainRate rate.Limit
	BatchSize int
	Clock     clock.Clock
}

func (c Config) withDefaults() Config {
	if c.HealthInterval <= 0 {
		c.HealthInterval = 5 * time.Second
	}
	if c.DrainRate == 0 {
		c.DrainRate = 10
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Hooks are invoked from connection goroutines without supervisor locks held.
// SendCandidates and OnHealth must not call Close.
type Hooks struct {
	// OnState reports each accepted transition; first is true only the
	// first time the connection reaches connected.
	OnState func(s domain.ConnectionState, first bool)
	// OnTerminated fires once when the connection fails or closes on its own.
	OnTerminated   func(s domain.ConnectionState)
	OnHealth       func(h domain.LinkHealth)
	OnRemoteTrack  func(t core.RemoteTrack)
	SendCandidates func(ctx context.Context, b throttle.Batch) error
}

type Supervisor struct {
	pc     core.PeerConnection
	neg    *negotiate.Negotiator
	thr    *throttle.Throttler
	cfg    Config
	hooks  Hooks
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu            sync.Mutex
	state         domain.ConnectionState
	everConnected bool
	sampling      bool
	done          bool
	closed        bool
}

func New(pc core.PeerConnection, tag string, cfg Config, hooks Hooks) *Supervisor {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		pc:     pc,
		neg:    negotiate.New(pc, tag),
		thr:    throttle.New(cfg.BatchSize),
		cfg:    cfg,
		hooks:  hooks,
		logger: log.With().Str("module", "supervisor").Str("call", tag).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}

	pc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		s.thr.Enqueue(domain.Candidate{
			Candidate:     c.Candidate,
			SDPMid:        c.SDPMid,
			SDPMLineIndex: c.SDPMLineIndex,
		})
	})
	pc.OnConnectionStateChange(func(ps webrtc.PeerConnectionState) {
		s.logger.Info().Str("peer_connection_state", ps.String()).Msg("peer state")
		if next, ok := fromPeerState(ps); ok {
			s.apply(next)
		}
	})
	pc.OnICEConnectionStateChange(func(is webrtc.ICEConnectionState) {
		s.logger.Info().Str("ice_state", is.String()).Msg("ICE state")
		if next, ok := fromICEState(is); ok {
			s.apply(next)
		}
	})
	pc.OnICEGatheringStateChange(func(gs webrtc.ICEGatheringState) {
		s.logger.Debug().Str("gathering_state", gs.String()).Int("queued", s.thr.Len()).Msg("ICE gathering")
	})
	pc.OnTrack(func(t core.RemoteTrack) {
		s.logger.Info().Str("kind", string(t.Kind())).Str("track_id", t.ID()).Msg("remote track")
		if s.hooks.OnRemoteTrack != nil {
			s.hooks.OnRemoteTrack(t)
		}
	})

	s.wg.Go(s.pump)
	return s
}

func (s *Supervisor) Negotiator() *negotiate.Negotiator { return s.neg }
func (s *Supervisor) Throttler() *throttle.Throttler    { return s.thr }
func (s *Supervisor) Connection() core.PeerConnection   { return s.pc }

// BindCall releases candidates held so far to id.
func (s *Supervisor) BindCall(id domain.CallID) { s.thr.Bind(id) }

func (s *Supervisor) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) Sampling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampling
}

func (s *Supervisor) apply(next domain.ConnectionState) {
	s.mu.Lock()
	if s.done || !accept(s.state, next, s.everConnected) {
		s.mu.Unlock()
		return
	}
	s.state = next
	first := false
	if next == domain.ConnConnected && !s.everConnected {
		s.everConnected = true
		first = true
		s.sampling = true
		s.wg.Go(s.sample)
	}
	fatal := next.Fatal()
	if fatal {
		s.done = true
	}
	s.mu.Unlock()

	s.logger.Info().Str("state", next.String()).Bool("first", first).Msg("connection state")
	if s.hooks.OnState != nil {
		s.hooks.OnState(next, first)
	}
	if fatal && s.hooks.OnTerminated != nil {
		s.hooks.OnTerminated(next)
	}
}

// pump drains the throttler at a bounded rate and hands batches to SendCandidates.
func (s *Supervisor) pump() {
	limiter := rate.NewLimiter(s.cfg.DrainRate, 1)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.thr.Ready():
		}
		for {
			if err := limiter.Wait(s.ctx); err != nil {
				return
			}
			b := s.thr.Drain()
			if b.Empty() {
				break
			}
			if s.hooks.SendCandidates == nil {
				continue
			}
			if err := s.hooks.SendCandidates(s.ctx, b); err != nil {
				s.logger.Warn().Err(err).Int("count", len(b.Candidates)).Msg("send candidates, requeue")
				s.thr.Requeue(b)
				break
			}
		}
	}
}

func (s *Supervisor) sample() {
	ticker := s.cfg.Clock.Ticker(s.cfg.HealthInterval)
	defer ticker.Stop()
	defer func() {
		s.mu.Lock()
		s.sampling = false
		s.mu.Unlock()
	}()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			h, err := s.pc.LinkHealth()
			if err != nil {
				s.logger.Debug().Err(err).Msg("link health")
				continue
			}
			h.At = s.cfg.Clock.Now()
			s.logger.Debug().
				Uint64("packets_received", h.PacketsReceived).
				Int64("packets_lost", h.PacketsLost).
				Float64("jitter", h.JitterSeconds).
				Float64("rtt", h.RoundTripSeconds).
				Msg("link health")
			if s.hooks.OnHealth != nil {
				s.hooks.OnHealth(h)
			}
		}
	}
}

// Close stops sampling and the candidate pump, drops queued candidates and
// closes the connection. Idempotent.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.done = true
	s.mu.Unlock()
	s.cancel()
	s.thr.Reset()
	if err := s.pc.Close(); err != nil {
		s.logger.Error().Err(err).Msg("close error")
	} else {
		s.logger.Info().Msg("closed")
	}
	s.wg.Wait()
}

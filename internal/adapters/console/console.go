// Package console renders call state as log lines for the headless client.
package console

import (
	"sync"
	"time"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ core.Surface = (*Surface)(nil)

// Surface implements core.Surface on top of a logger.
type Surface struct {
	logger   zerolog.Logger
	incoming chan domain.IncomingCall
	states   chan domain.View

	mu    sync.Mutex
	sinks map[domain.StreamSlot]*sink
	last  domain.View
}

func New() *Surface {
	return &Surface{
		logger:   log.With().Str("module", "console").Logger(),
		incoming: make(chan domain.IncomingCall, 4),
		states:   make(chan domain.View, 16),
		sinks:    make(map[domain.StreamSlot]*sink),
	}
}

// Mount makes slot renderable. Streams attached before that are retried by
// the presenter.
func (s *Surface) Mount(slot domain.StreamSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sinks[slot]; !ok {
		s.sinks[slot] = &sink{slot: slot, logger: s.logger}
	}
}

func (s *Surface) Sink(slot domain.StreamSlot) (core.RenderSink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.sinks[slot]
	if !ok {
		return nil, false
	}
	return k, true
}

// Incoming delivers surfaced calls. Calls are dropped when nobody reads.
func (s *Surface) Incoming() <-chan domain.IncomingCall { return s.incoming }

// States delivers every published view, dropping when full.
func (s *Surface) States() <-chan domain.View { return s.states }

func (s *Surface) Last() domain.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Surface) CallStateChanged(v domain.View) {
	s.mu.Lock()
	s.last = v
	s.mu.Unlock()
	s.logger.Info().
		Str("call_id", string(v.CallID)).
		Str("role", v.Role).
		Str("lifecycle", v.Lifecycle).
		Str("connection", v.Connection).
		Str("peer", string(v.Counterpart.ID)).
		Msg("call state")
	select {
	case s.states <- v:
	default:
	}
}

func (s *Surface) IncomingCall(c domain.IncomingCall) {
	s.logger.Info().Str("call_id", string(c.CallID)).Str("from", c.Caller.DisplayName).Str("kind", string(c.Kind)).Msg("incoming call")
	select {
	case s.incoming <- c:
	default:
		s.logger.Warn().Str("call_id", string(c.CallID)).Msg("incoming call not delivered")
	}
}

func (s *Surface) DurationTick(d time.Duration) {
	s.logger.Debug().Dur("duration", d.Truncate(time.Second)).Msg("tick")
}

func (s *Surface) StreamPresence(slot domain.StreamSlot, present bool) {
	s.logger.Info().Str("slot", string(slot)).Bool("present", present).Msg("stream presence")
}

func (s *Surface) LinkHealth(h domain.LinkHealth) {
	s.logger.Info().
		Uint64("received", h.PacketsReceived).
		Int64("lost", h.PacketsLost).
		Float64("jitter_s", h.JitterSeconds).
		Float64("rtt_s", h.RoundTripSeconds).
		Float64("remote_loss", h.RemoteFractionLost).
		Msg("link health")
}

func (s *Surface) CallFailed(err error) {
	s.logger.Error().Err(err).Msg("call failed")
}

type sink struct {
	slot   domain.StreamSlot
	logger zerolog.Logger
}

func (k *sink) Attach(st *core.Stream) error {
	k.logger.Info().
		Str("slot", string(k.slot)).
		Str("stream", st.ID).
		Int("audio", st.Count(domain.MediaAudio)).
		Int("video", st.Count(domain.MediaVideo)).
		Msg("stream attached")
	return nil
}

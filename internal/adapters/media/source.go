// Package media is a capture source that produces synthetic opus and vp8
// samples. It stands in for microphone and camera on headless clients and
// can be told to behave like a missing device or a refused permission.
package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = 33 * time.Millisecond
)

type Settings struct {
	Microphone bool
	Camera     bool
	// Deny makes every acquisition fail as if the user refused the prompt.
	Deny  bool
	Clock clock.Clock
}

type Source struct {
	cfg    Settings
	logger zerolog.Logger

	mu     sync.Mutex
	tracks []*Track
}

func NewSource(cfg Settings) *Source {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Source{cfg: cfg, logger: log.With().Str("module", "media").Logger()}
}

// Acquire returns one track per requested kind whose device is present.
// Missing devices are left out rather than failing the whole request.
func (s *Source) Acquire(ctx context.Context, c core.Constraints) ([]core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.cfg.Deny {
		return nil, domain.ErrPermissionDenied
	}
	if (!c.Audio || !s.cfg.Microphone) && (!c.Video || !s.cfg.Camera) {
		return nil, domain.ErrDeviceNotFound
	}

	streamID := "local-" + uuid.NewString()
	var out []core.LocalTrack
	add := func(kind domain.MediaKind) error {
		t, err := newTrack(kind, streamID, s.cfg.Clock)
		if err != nil {
			for _, prev := range out {
				prev.Stop()
			}
			return err
		}
		s.mu.Lock()
		s.tracks = append(s.tracks, t)
		s.mu.Unlock()
		out = append(out, t)
		return nil
	}
	if c.Audio && s.cfg.Microphone {
		if err := add(domain.MediaAudio); err != nil {
			return nil, err
		}
	}
	if c.Video && s.cfg.Camera {
		if err := add(domain.MediaVideo); err != nil {
			return nil, err
		}
	}
	s.logger.Info().Int("tracks", len(out)).Bool("audio", c.Audio).Bool("video", c.Video).Msg("media acquired")
	return out, nil
}

// ResetDevices re-enables every live track, the way a capture stack does
// after a device change.
func (s *Source) ResetDevices() int {
	s.mu.Lock()
	live := make([]*Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		if !t.Stopped() {
			live = append(live, t)
		}
	}
	s.tracks = live
	s.mu.Unlock()

	n := 0
	for _, t := range live {
		if !t.Enabled() {
			t.SetEnabled(true)
			n++
		}
	}
	s.logger.Info().Int("reset", n).Msg("device reset")
	return n
}

// Track is a synthetic local track writing samples while enabled.
type Track struct {
	id    string
	kind  domain.MediaKind
	local *webrtc.TrackLocalStaticSample
	clock clock.Clock

	mu      sync.Mutex
	enabled bool
	written int
	stopped bool
	done    chan struct{}
}

func newTrack(kind domain.MediaKind, streamID string, clk clock.Clock) (*Track, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == domain.MediaVideo {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	id := fmt.Sprintf("%s-%s", kind, uuid.NewString())
	local, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", kind, err)
	}
	t := &Track{id: id, kind: kind, local: local, clock: clk, enabled: true, done: make(chan struct{})}
	go t.run()
	return t, nil
}

func (t *Track) ID() string                    { return t.id }
func (t *Track) Kind() domain.MediaKind        { return t.kind }
func (t *Track) TrackLocal() webrtc.TrackLocal { return t.local }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(v bool) {
	t.mu.Lock()
	t.enabled = v
	t.mu.Unlock()
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Written counts samples handed to the rtp track.
func (t *Track) Written() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.done)
}

func (t *Track) run() {
	frame := audioFrame
	payload := make([]byte, 160)
	if t.kind == domain.MediaVideo {
		frame = videoFrame
		payload = make([]byte, 1200)
	}
	ticker := t.clock.Ticker(frame)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			if err := t.local.WriteSample(media.Sample{Data: payload, Duration: frame}); err != nil {
				continue
			}
			t.mu.Lock()
			t.written++
			t.mu.Unlock()
		}
	}
}

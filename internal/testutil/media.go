package testutil

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Track is a core.LocalTrack and core.RemoteTrack without a codec behind it.
type Track struct {
	id   string
	kind domain.MediaKind

	mu      sync.Mutex
	enabled bool
	stops   int
}

func NewTrack(id string, kind domain.MediaKind) *Track {
	return &Track{id: id, kind: kind, enabled: true}
}

func (t *Track) ID() string                    { return t.id }
func (t *Track) Kind() domain.MediaKind        { return t.kind }
func (t *Track) StreamID() string              { return "remote-stream" }
func (t *Track) TrackLocal() webrtc.TrackLocal { return nil }

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

func (t *Track) Stop() {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
}

func (t *Track) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// MediaSource hands out Tracks. Missing kinds are simply left out, the way
// a capture stack returns a partial stream when a device is absent.
type MediaSource struct {
	mu       sync.Mutex
	NoAudio  bool
	NoVideo  bool
	Err      error
	Acquired []*Track
	calls    int

	// Before runs at the start of each Acquire; tests use it to interleave.
	Before func()
}

func (m *MediaSource) Acquire(_ context.Context, c core.Constraints) ([]core.LocalTrack, error) {
	m.mu.Lock()
	before := m.Before
	m.mu.Unlock()
	if before != nil {
		before()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	var out []core.LocalTrack
	if c.Audio && !m.NoAudio {
		t := NewTrack("mic", domain.MediaAudio)
		m.Acquired = append(m.Acquired, t)
		out = append(out, t)
	}
	if c.Video && !m.NoVideo {
		t := NewTrack("cam", domain.MediaVideo)
		m.Acquired = append(m.Acquired, t)
		out = append(out, t)
	}
	return out, nil
}

func (m *MediaSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MediaSource) Tracks() []*Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Track, len(m.Acquired))
	copy(out, m.Acquired)
	return out
}

package core

import (
	"sync"

	"github.com/dkeye/VoiceCall/internal/domain"
)

// Stream is the media handle handed to rendering. Tracks may be added
// while it is attached.
type Stream struct {
	ID string

	mu     sync.RWMutex
	tracks []MediaTrack
}

func NewStream(id string, tracks ...MediaTrack) *Stream {
	return &Stream{ID: id, tracks: tracks}
}

func (s *Stream) Add(t MediaTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.tracks {
		if have.ID() == t.ID() {
			return
		}
	}
	s.tracks = append(s.tracks, t)
}

func (s *Stream) Tracks() []MediaTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MediaTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *Stream) Count(kind domain.MediaKind) int {
	n := 0
	for _, t := range s.Tracks() {
		if t.Kind() == kind {
			n++
		}
	}
	return n
}

func (s *Stream) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks) == 0
}

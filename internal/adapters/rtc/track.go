package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// remoteTrack is a core.RemoteTrack. Disabling it only stops counting it as
// rendered; RTP keeps being drained so the jitter buffer never backs up.
type remoteTrack struct {
	track *webrtc.TrackRemote

	mu      sync.Mutex
	enabled bool
	packets uint64
	lastSeq uint16
	lastTS  uint32
}

func newRemoteTrack(t *webrtc.TrackRemote) *remoteTrack {
	return &remoteTrack{track: t, enabled: true}
}

func (t *remoteTrack) ID() string       { return t.track.ID() }
func (t *remoteTrack) StreamID() string { return t.track.StreamID() }

func (t *remoteTrack) Kind() domain.MediaKind {
	if t.track.Kind() == webrtc.RTPCodecTypeVideo {
		return domain.MediaVideo
	}
	return domain.MediaAudio
}

func (t *remoteTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *remoteTrack) SetEnabled(v bool) {
	t.mu.Lock()
	t.enabled = v
	t.mu.Unlock()
}

func (t *remoteTrack) Packets() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.packets
}

func (t *remoteTrack) drain(ctx context.Context) {
	for ctx.Err() == nil {
		pkt, _, err := t.track.ReadRTP()
		if err != nil {
			return
		}
		t.observe(pkt)
	}
}

func (t *remoteTrack) observe(pkt *rtp.Packet) {
	t.mu.Lock()
	t.packets++
	t.lastSeq = pkt.SequenceNumber
	t.lastTS = pkt.Timestamp
	t.mu.Unlock()
}

package core

import (
	"context"

	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the native connection the supervisor owns.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddLocalTrack attaches a local track; renegotiation is the caller's job.
	AddLocalTrack(LocalTrack) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnICEConnectionStateChange(func(webrtc.ICEConnectionState))
	OnICEGatheringStateChange(func(webrtc.ICEGatheringState))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(RemoteTrack))
	// LinkHealth samples RTP-level delivery statistics.
	LinkHealth() (domain.LinkHealth, error)
	Close() error
}

// PeerConnectionFactory creates one connection per call.
type PeerConnectionFactory interface {
	NewPeerConnection(ctx context.Context) (PeerConnection, error)
}

type MediaTrack interface {
	ID() string
	Kind() domain.MediaKind
	Enabled() bool
	SetEnabled(bool)
}

type LocalTrack interface {
	MediaTrack
	TrackLocal() webrtc.TrackLocal
	// Stop releases the capture device. Safe to call more than once.
	Stop()
}

type RemoteTrack interface {
	MediaTrack
	StreamID() string
}

type Constraints struct {
	Audio bool
	Video bool
}

func ConstraintsFor(kind domain.CallKind) Constraints {
	return Constraints{Audio: true, Video: kind == domain.CallVideo}
}

// MediaSource acquires local capture tracks. It returns domain.ErrPermissionDenied
// or domain.ErrDeviceNotFound when acquisition is refused outright.
type MediaSource interface {
	Acquire(ctx context.Context, c Constraints) ([]LocalTrack, error)
}

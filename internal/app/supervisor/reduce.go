package supervisor

import (
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

func fromPeerState(s webrtc.PeerConnectionState) (domain.ConnectionState, bool) {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return domain.ConnNew, true
	case webrtc.PeerConnectionStateConnecting:
		return domain.ConnConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return domain.ConnConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return domain.ConnDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return domain.ConnFailed, true
	case webrtc.PeerConnectionStateClosed:
		return domain.ConnClosed, true
	}
	return 0, false
}

func fromICEState(s webrtc.ICEConnectionState) (domain.ConnectionState, bool) {
	switch s {
	case webrtc.ICEConnectionStateNew:
		return domain.ConnNew, true
	case webrtc.ICEConnectionStateChecking:
		return domain.ConnConnecting, true
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return domain.ConnConnected, true
	case webrtc.ICEConnectionStateDisconnected:
		return domain.ConnDisconnected, true
	case webrtc.ICEConnectionStateFailed:
		return domain.ConnFailed, true
	case webrtc.ICEConnectionStateClosed:
		return domain.ConnClosed, true
	}
	return 0, false
}

// accept decides whether next replaces cur. The first signal to report a
// transition wins; the twin signal arriving later is a no-op, and pre-connect
// states never pull an established connection backwards.
func accept(cur, next domain.ConnectionState, everConnected bool) bool {
	if cur.Fatal() || cur == next {
		return false
	}
	switch next {
	case domain.ConnNew, domain.ConnConnecting:
		return !everConnected
	case domain.ConnDisconnected:
		return cur != domain.ConnNew
	}
	return true
}

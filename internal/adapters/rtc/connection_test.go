package rtc

import (
	"context"
	"strings"
	"testing"

	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	s := DefaultSettings()
	s.ICEServers = nil
	f, err := NewFactory(s)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	return f
}

func newConn(t *testing.T, f *Factory) *Connection {
	t.Helper()
	pc, err := f.NewPeerConnection(context.Background())
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	c := pc.(*Connection)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOfferAnswerExchange(t *testing.T) {
	f := newTestFactory(t)
	caller, receiver := newConn(t, f), newConn(t, f)

	if _, err := caller.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
		t.Fatalf("AddTransceiverFromKind: %v", err)
	}
	offer, err := caller.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if !strings.Contains(offer.SDP, "m=audio") {
		t.Fatalf("offer has no audio section:\n%s", offer.SDP)
	}
	if err := caller.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}
	if err := receiver.SetRemoteDescription(offer); err != nil {
		t.Fatalf("SetRemoteDescription: %v", err)
	}
	answer, err := receiver.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if err := receiver.SetLocalDescription(answer); err != nil {
		t.Fatalf("receiver SetLocalDescription: %v", err)
	}
	if err := caller.SetRemoteDescription(answer); err != nil {
		t.Fatalf("caller SetRemoteDescription: %v", err)
	}
	if caller.pc.SignalingState() != webrtc.SignalingStateStable || receiver.pc.SignalingState() != webrtc.SignalingStateStable {
		t.Fatalf("signaling states = %s / %s", caller.pc.SignalingState(), receiver.pc.SignalingState())
	}
}

func TestAnswerWithoutOfferFails(t *testing.T) {
	c := newConn(t, newTestFactory(t))
	if _, err := c.CreateAnswer(); err == nil {
		t.Fatal("CreateAnswer without remote offer succeeded")
	}
}

func TestLinkHealthBeforeMedia(t *testing.T) {
	c := newConn(t, newTestFactory(t))
	h, err := c.LinkHealth()
	if err != nil {
		t.Fatalf("LinkHealth: %v", err)
	}
	if h.PacketsReceived != 0 || h.RemoteFractionLost != 0 {
		t.Fatalf("health = %+v", h)
	}
}

func TestAddLocalTrackNeedsSource(t *testing.T) {
	c := newConn(t, newTestFactory(t))
	if err := c.AddLocalTrack(nilTrack{}); err == nil {
		t.Fatal("track without rtp source accepted")
	}
}

type nilTrack struct{}

func (nilTrack) ID() string                    { return "nil" }
func (nilTrack) Kind() domain.MediaKind        { return domain.MediaAudio }
func (nilTrack) Enabled() bool                 { return true }
func (nilTrack) SetEnabled(bool)               {}
func (nilTrack) TrackLocal() webrtc.TrackLocal { return nil }
func (nilTrack) Stop()                         {}

// Package testutil holds in-memory stand-ins for the pion connection, media
// capture, signaling and UI used across package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// PeerConnection is a scripted core.PeerConnection.
type PeerConnection struct {
	mu sync.Mutex

	offers, answers int
	Local           []webrtc.SessionDescription
	Remote          []webrtc.SessionDescription
	Candidates      []webrtc.ICECandidateInit
	Tracks          []core.LocalTrack
	closed          int

	SetRemoteErr error
	Health       domain.LinkHealth

	// BeforeOffer runs at the start of CreateOffer, outside the lock.
	BeforeOffer func()

	onICE       func(webrtc.ICECandidateInit)
	onConn      func(webrtc.PeerConnectionState)
	onICEConn   func(webrtc.ICEConnectionState)
	onGathering func(webrtc.ICEGatheringState)
	onTrack     func(core.RemoteTrack)
}

var ErrClosed = errors.New("peer connection closed")

func NewPeerConnection() *PeerConnection { return &PeerConnection{} }

func (p *PeerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	hook := p.BeforeOffer
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed > 0 {
		return webrtc.SessionDescription{}, ErrClosed
	}
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("v=0 offer %d", p.offers)}, nil
}

func (p *PeerConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed > 0 {
		return webrtc.SessionDescription{}, ErrClosed
	}
	p.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("v=0 answer %d", p.answers)}, nil
}

func (p *PeerConnection) SetLocalDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Local = append(p.Local, d)
	return nil
}

func (p *PeerConnection) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SetRemoteErr != nil {
		return p.SetRemoteErr
	}
	p.Remote = append(p.Remote, d)
	return nil
}

func (p *PeerConnection) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Candidates = append(p.Candidates, c)
	return nil
}

func (p *PeerConnection) AddLocalTrack(t core.LocalTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Tracks = append(p.Tracks, t)
	return nil
}

func (p *PeerConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *PeerConnection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onConn = fn
	p.mu.Unlock()
}

func (p *PeerConnection) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	p.mu.Lock()
	p.onICEConn = fn
	p.mu.Unlock()
}

func (p *PeerConnection) OnICEGatheringStateChange(fn func(webrtc.ICEGatheringState)) {
	p.mu.Lock()
	p.onGathering = fn
	p.mu.Unlock()
}

func (p *PeerConnection) OnTrack(fn func(core.RemoteTrack)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *PeerConnection) LinkHealth() (domain.LinkHealth, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Health, nil
}

func (p *PeerConnection) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return nil
}

func (p *PeerConnection) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *PeerConnection) RemoteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Remote)
}

func (p *PeerConnection) CandidateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Candidates)
}

func (p *PeerConnection) TrackCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Tracks)
}

func (p *PeerConnection) FireCandidate(c webrtc.ICECandidateInit) {
	p.mu.Lock()
	fn := p.onICE
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (p *PeerConnection) FireConnectionState(s webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.onConn
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (p *PeerConnection) FireICEConnectionState(s webrtc.ICEConnectionState) {
	p.mu.Lock()
	fn := p.onICEConn
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (p *PeerConnection) FireGatheringState(s webrtc.ICEGatheringState) {
	p.mu.Lock()
	fn := p.onGathering
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (p *PeerConnection) FireTrack(t core.RemoteTrack) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

// Factory hands out scripted connections and remembers them.
type Factory struct {
	mu   sync.Mutex
	Made []*PeerConnection
	Err  error

	// BeforeOffer is copied onto every connection made.
	BeforeOffer func()
}

func (f *Factory) NewPeerConnection(_ context.Context) (core.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	pc := NewPeerConnection()
	pc.BeforeOffer = f.BeforeOffer
	f.Made = append(f.Made, pc)
	return pc, nil
}

func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Made)
}

func (f *Factory) Last() *PeerConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Made) == 0 {
		return nil
	}
	return f.Made[len(f.Made)-1]
}

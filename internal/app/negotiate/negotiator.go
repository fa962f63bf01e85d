// Package negotiate drives the SDP offer/answer handshake on one peer
// connection and refuses steps that are illegal for the current phase.
package negotiate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Phase int

const (
	Stable Phase = iota
	HaveLocalOffer
	HaveRemoteOffer
	HaveLocalAnswer
)

func (p Phase) String() string {
	switch p {
	case Stable:
		return "stable"
	case HaveLocalOffer:
		return "have-local-offer"
	case HaveRemoteOffer:
		return "have-remote-offer"
	case HaveLocalAnswer:
		return "have-local-answer"
	}
	return "unknown"
}

// ErrNegotiationRace marks failures that come from stale or duplicated
// signaling. Callers log them and carry on.
var ErrNegotiationRace = errors.New("negotiation race")

var (
	ErrInvalidSignalingState = fmt.Errorf("%w: invalid signaling state", ErrNegotiationRace)
	ErrDuplicateAnswer       = fmt.Errorf("%w: duplicate answer", ErrNegotiationRace)
)

var transitions = map[Phase][]Phase{
	Stable:          {HaveLocalOffer, HaveRemoteOffer},
	HaveLocalOffer:  {Stable},
	HaveRemoteOffer: {HaveLocalAnswer},
	HaveLocalAnswer: {Stable},
}

// CanTransition reports whether the handshake allows from -> to.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

type Negotiator struct {
	pc     core.PeerConnection
	logger zerolog.Logger

	mu            sync.Mutex
	phase         Phase
	polite        bool
	rolledBack    bool
	remoteApplied bool
	haveRemote    bool
	rounds        int
	early         []webrtc.ICECandidateInit
}

func New(pc core.PeerConnection, callTag string) *Negotiator {
	return &Negotiator{
		pc:     pc,
		logger: log.With().Str("module", "negotiate").Str("call", callTag).Logger(),
	}
}

// SetPolite decides who yields when both sides offer at once. A polite
// negotiator rolls its own offer back and takes the remote one; an impolite
// one refuses the remote offer and waits for its answer.
func (n *Negotiator) SetPolite(polite bool) {
	n.mu.Lock()
	n.polite = polite
	n.mu.Unlock()
}

// TakeRolledBack reports whether a local offer was rolled back since the last
// call, and clears the mark. The caller offers again once the remote round
// is answered.
func (n *Negotiator) TakeRolledBack() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	rb := n.rolledBack
	n.rolledBack = false
	return rb
}

func (n *Negotiator) Phase() Phase {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.phase
}

// RemoteDescriptionApplied reports whether the current round already took a remote answer.
func (n *Negotiator) RemoteDescriptionApplied() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.remoteApplied
}

// Rounds counts offers created locally, renegotiations included.
func (n *Negotiator) Rounds() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rounds
}

func (n *Negotiator) move(to Phase) error {
	if !CanTransition(n.phase, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidSignalingState, n.phase, to)
	}
	n.logger.Debug().Str("from", n.phase.String()).Str("to", to.String()).Msg("phase")
	n.phase = to
	return nil
}

// CreateOffer starts a new round. Legal only from Stable.
func (n *Negotiator) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.phase != Stable {
		return "", fmt.Errorf("%w: create offer in %s", ErrInvalidSignalingState, n.phase)
	}
	offer, err := n.pc.CreateOffer()
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local offer: %w", err)
	}
	if err := n.move(HaveLocalOffer); err != nil {
		return "", err
	}
	n.remoteApplied = false
	n.rounds++
	return offer.SDP, nil
}

// ApplyRemoteOffer takes the far side's offer, initial or renegotiation.
func (n *Negotiator) ApplyRemoteOffer(ctx context.Context, sdp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.phase == HaveLocalOffer && n.polite {
		if err := n.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			return fmt.Errorf("roll back local offer: %w", err)
		}
		if err := n.move(Stable); err != nil {
			return err
		}
		n.rolledBack = true
		n.logger.Info().Msg("offer collision, local offer rolled back")
	}
	if n.phase != Stable {
		return fmt.Errorf("%w: remote offer in %s", ErrInvalidSignalingState, n.phase)
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := n.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	if err := n.move(HaveRemoteOffer); err != nil {
		return err
	}
	n.haveRemote = true
	n.flushEarlyLocked()
	return nil
}

// CreateAnswer answers the applied remote offer and returns to Stable.
func (n *Negotiator) CreateAnswer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.phase != HaveRemoteOffer {
		return "", fmt.Errorf("%w: create answer in %s", ErrInvalidSignalingState, n.phase)
	}
	answer, err := n.pc.CreateAnswer()
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := n.move(HaveLocalAnswer); err != nil {
		return "", err
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		n.phase = HaveRemoteOffer
		return "", fmt.Errorf("set local answer: %w", err)
	}
	if err := n.move(Stable); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// ApplyRemoteAnswer completes a round the local side offered. A second answer
// for the same round yields ErrDuplicateAnswer; any answer outside
// HaveLocalOffer yields ErrInvalidSignalingState.
func (n *Negotiator) ApplyRemoteAnswer(ctx context.Context, sdp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.phase != HaveLocalOffer {
		if n.remoteApplied {
			return ErrDuplicateAnswer
		}
		return fmt.Errorf("%w: remote answer in %s", ErrInvalidSignalingState, n.phase)
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := n.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	n.remoteApplied = true
	n.haveRemote = true
	if err := n.move(Stable); err != nil {
		return err
	}
	n.flushEarlyLocked()
	return nil
}

// AddRemoteCandidate applies c, holding it until a remote description exists.
func (n *Negotiator) AddRemoteCandidate(c domain.Candidate) error {
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.haveRemote {
		n.early = append(n.early, init)
		return nil
	}
	return n.pc.AddICECandidate(init)
}

// Pending counts remote candidates still waiting for a remote description.
func (n *Negotiator) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.early)
}

func (n *Negotiator) flushEarlyLocked() {
	for _, c := range n.early {
		if err := n.pc.AddICECandidate(c); err != nil {
			n.logger.Warn().Err(err).Msg("add buffered candidate")
		}
	}
	n.early = nil
}

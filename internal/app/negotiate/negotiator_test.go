package negotiate

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/dkeye/VoiceCall/internal/testutil"
	"github.com/pion/webrtc/v4"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{Stable, HaveLocalOffer, true},
		{Stable, HaveRemoteOffer, true},
		{Stable, HaveLocalAnswer, false},
		{HaveLocalOffer, Stable, true},
		{HaveLocalOffer, HaveRemoteOffer, false},
		{HaveRemoteOffer, HaveLocalAnswer, true},
		{HaveRemoteOffer, Stable, false},
		{HaveLocalAnswer, Stable, true},
		{HaveLocalAnswer, HaveLocalOffer, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNegotiator_OfferAnswerExchange(t *testing.T) {
	ctx := context.Background()
	offererPC := testutil.NewPeerConnection()
	answererPC := testutil.NewPeerConnection()
	offerer := New(offererPC, "t")
	answerer := New(answererPC, "t")

	offer, err := offerer.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offerer.Phase() != HaveLocalOffer {
		t.Errorf("offerer phase = %s, want have-local-offer", offerer.Phase())
	}

	if err := answerer.ApplyRemoteOffer(ctx, offer); err != nil {
		t.Fatalf("ApplyRemoteOffer: %v", err)
	}
	if answerer.Phase() != HaveRemoteOffer {
		t.Errorf("answerer phase = %s, want have-remote-offer", answerer.Phase())
	}

	answer, err := answerer.CreateAnswer(ctx)
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if answerer.Phase() != Stable {
		t.Errorf("answerer phase after answer = %s, want stable", answerer.Phase())
	}

	if err := offerer.ApplyRemoteAnswer(ctx, answer); err != nil {
		t.Fatalf("ApplyRemoteAnswer: %v", err)
	}
	if offerer.Phase() != Stable || !offerer.RemoteDescriptionApplied() {
		t.Errorf("offerer after answer: phase %s applied %v", offerer.Phase(), offerer.RemoteDescriptionApplied())
	}
	if offererPC.RemoteCount() != 1 || answererPC.RemoteCount() != 1 {
		t.Errorf("remote descriptions: offerer %d answerer %d", offererPC.RemoteCount(), answererPC.RemoteCount())
	}
}

func TestNegotiator_DuplicateAnswerIsAbsorbable(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPeerConnection()
	n := New(pc, "t")

	if _, err := n.CreateOffer(ctx); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if err := n.ApplyRemoteAnswer(ctx, "v=0 answer"); err != nil {
		t.Fatalf("first answer: %v", err)
	}

	err := n.ApplyRemoteAnswer(ctx, "v=0 answer")
	if !errors.Is(err, ErrDuplicateAnswer) {
		t.Fatalf("second answer err = %v, want ErrDuplicateAnswer", err)
	}
	if !errors.Is(err, ErrNegotiationRace) {
		t.Fatalf("duplicate answer is not a negotiation race: %v", err)
	}
	if pc.RemoteCount() != 1 {
		t.Fatalf("remote description applied %d times", pc.RemoteCount())
	}
	if n.Phase() != Stable {
		t.Fatalf("phase = %s after duplicate", n.Phase())
	}
}

func TestNegotiator_AnswerWithoutOffer(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPeerConnection()
	n := New(pc, "t")

	err := n.ApplyRemoteAnswer(ctx, "v=0 stray")
	if !errors.Is(err, ErrInvalidSignalingState) {
		t.Fatalf("err = %v, want ErrInvalidSignalingState", err)
	}
	if errors.Is(err, ErrDuplicateAnswer) {
		t.Fatal("stray answer reported as duplicate")
	}
	if pc.RemoteCount() != 0 {
		t.Fatal("stray answer reached the connection")
	}
}

func TestNegotiator_IllegalSteps(t *testing.T) {
	ctx := context.Background()
	n := New(testutil.NewPeerConnection(), "t")

	if _, err := n.CreateAnswer(ctx); !errors.Is(err, ErrInvalidSignalingState) {
		t.Errorf("CreateAnswer from stable: %v", err)
	}
	if _, err := n.CreateOffer(ctx); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if _, err := n.CreateOffer(ctx); !errors.Is(err, ErrInvalidSignalingState) {
		t.Errorf("second CreateOffer: %v", err)
	}
	if err := n.ApplyRemoteOffer(ctx, "v=0 glare"); !errors.Is(err, ErrInvalidSignalingState) {
		t.Errorf("remote offer during local offer: %v", err)
	}
}

func TestNegotiator_RenegotiationStartsNewRound(t *testing.T) {
	ctx := context.Background()
	n := New(testutil.NewPeerConnection(), "t")

	if _, err := n.CreateOffer(ctx); err != nil {
		t.Fatal(err)
	}
	if err := n.ApplyRemoteAnswer(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if _, err := n.CreateOffer(ctx); err != nil {
		t.Fatalf("renegotiation offer: %v", err)
	}
	if n.RemoteDescriptionApplied() {
		t.Fatal("new round still marked as answered")
	}
	if err := n.ApplyRemoteAnswer(ctx, "a2"); err != nil {
		t.Fatalf("renegotiation answer: %v", err)
	}
	if n.Rounds() != 2 {
		t.Fatalf("rounds = %d", n.Rounds())
	}
}

func TestNegotiator_EarlyCandidatesAreHeld(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPeerConnection()
	n := New(pc, "t")

	mid := "0"
	for i := 0; i < 3; i++ {
		if err := n.AddRemoteCandidate(domain.Candidate{Candidate: "candidate:1", SDPMid: &mid}); err != nil {
			t.Fatal(err)
		}
	}
	if pc.CandidateCount() != 0 || n.Pending() != 3 {
		t.Fatalf("candidates applied before remote description: pc %d pending %d", pc.CandidateCount(), n.Pending())
	}
	if err := n.ApplyRemoteOffer(ctx, "v=0 offer"); err != nil {
		t.Fatal(err)
	}
	if pc.CandidateCount() != 3 || n.Pending() != 0 {
		t.Fatalf("after remote offer: pc %d pending %d", pc.CandidateCount(), n.Pending())
	}
	if err := n.AddRemoteCandidate(domain.Candidate{Candidate: "candidate:2"}); err != nil {
		t.Fatal(err)
	}
	if pc.CandidateCount() != 4 {
		t.Fatalf("late candidate not applied directly")
	}
}

func TestNegotiator_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pc := testutil.NewPeerConnection()
	n := New(pc, "t")
	if _, err := n.CreateOffer(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if n.Phase() != Stable {
		t.Fatal("phase moved on a canceled context")
	}
}

func TestNegotiator_OfferCollision(t *testing.T) {
	ctx := context.Background()
	callerPC := testutil.NewPeerConnection()
	receiverPC := testutil.NewPeerConnection()
	caller := New(callerPC, "t")
	receiver := New(receiverPC, "t")
	receiver.SetPolite(true)

	callerOffer, err := caller.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("caller CreateOffer: %v", err)
	}
	receiverOffer, err := receiver.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("receiver CreateOffer: %v", err)
	}

	if err := caller.ApplyRemoteOffer(ctx, receiverOffer); !errors.Is(err, ErrNegotiationRace) {
		t.Fatalf("caller took the colliding offer: %v", err)
	}
	if caller.Phase() != HaveLocalOffer {
		t.Fatalf("caller phase = %s", caller.Phase())
	}

	if err := receiver.ApplyRemoteOffer(ctx, callerOffer); err != nil {
		t.Fatalf("receiver ApplyRemoteOffer: %v", err)
	}
	if last := receiverPC.Local[len(receiverPC.Local)-1]; last.Type != webrtc.SDPTypeRollback {
		t.Fatalf("last local description = %s, want rollback", last.Type)
	}
	answer, err := receiver.CreateAnswer(ctx)
	if err != nil {
		t.Fatalf("receiver CreateAnswer: %v", err)
	}
	if err := caller.ApplyRemoteAnswer(ctx, answer); err != nil {
		t.Fatalf("caller ApplyRemoteAnswer: %v", err)
	}
	if caller.Phase() != Stable || receiver.Phase() != Stable {
		t.Fatalf("phases after collision: caller %s receiver %s", caller.Phase(), receiver.Phase())
	}

	if !receiver.TakeRolledBack() {
		t.Fatal("rollback not reported")
	}
	if receiver.TakeRolledBack() {
		t.Fatal("rollback reported twice")
	}
	if _, err := receiver.CreateOffer(ctx); err != nil {
		t.Fatalf("receiver offers again: %v", err)
	}
}

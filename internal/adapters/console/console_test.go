package console

import (
	"errors"
	"testing"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

func TestMounting(t *testing.T) {
	s := New()
	if _, ok := s.Sink(domain.SlotRemote); ok {
		t.Fatal("remote slot mounted before Mount")
	}
	s.Mount(domain.SlotRemote)
	k, ok := s.Sink(domain.SlotRemote)
	if !ok {
		t.Fatal("remote slot not mounted")
	}
	if err := k.Attach(core.NewStream("remote-1")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
}

func TestReportsNeverBlock(t *testing.T) {
	s := New()
	for i := 0; i < 10; i++ {
		s.IncomingCall(domain.IncomingCall{CallID: "c"})
	}
	for i := 0; i < 40; i++ {
		s.CallStateChanged(domain.View{Lifecycle: "connected"})
	}
	s.CallFailed(errors.New("boom"))
	if got := len(s.Incoming()); got != cap(s.incoming) {
		t.Fatalf("incoming buffered = %d", got)
	}
	if s.Last().Lifecycle != "connected" {
		t.Fatalf("last = %+v", s.Last())
	}
}
